package raft

import (
	"dsbuild/storage/index"
	"fmt"
)

// KV is the replicated state machine.
type KV struct {
	data index.Indexer[string]
}

func NewKV() *KV {
	return &KV{data: index.NewSimMap[string]()}
}

// Apply executes a command and returns the reply for its sender.
func (kv *KV) Apply(cmd Command) CommandReply {
	reply := func(status int, info string) CommandReply {
		return CommandReply{Status: status, Info: info, CommandID: cmd.ID}
	}
	ct := cmd.Type
	switch ct.Kind {
	case CreateKind:
		if _, ok := kv.data.Get(ct.Key); ok {
			return reply(AlreadyExistsCode, "already exists")
		}
		kv.data.Put(ct.Key, "")
		return reply(CreatedCode, "created")
	case UpdateKind:
		if _, ok := kv.data.Get(ct.Key); !ok {
			return reply(NotFoundCode, "not found")
		}
		kv.data.Put(ct.Key, ct.Value)
		return reply(UpdatedCode, "updated")
	case DeleteKind:
		if _, ok := kv.data.Delete(ct.Key); !ok {
			return reply(NotFoundCode, "not found")
		}
		return reply(DeletedCode, "deleted")
	case CasKind:
		cur, ok := kv.data.Get(ct.Key)
		if !ok {
			return reply(NotFoundCode, "not found")
		}
		if cur != ct.Compare {
			return reply(NotUpdatedCode, fmt.Sprintf("not updated, current value %q", cur))
		}
		kv.data.Put(ct.Key, ct.Value)
		return reply(UpdatedCode, "updated")
	default:
		return reply(NotFoundCode, fmt.Sprintf("unknown command %q", ct.Kind))
	}
}

// Read returns nil for a missing key.
func (kv *KV) Read(key string) *string {
	v, ok := kv.data.Get(key)
	if !ok {
		return nil
	}
	return &v
}

func (kv *KV) Size() int {
	return kv.data.Size()
}
