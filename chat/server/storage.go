package server

import (
	"dsbuild/chat"
	"dsbuild/process"
	"dsbuild/storage/data"
	"errors"
	"fmt"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

const globalFile = "events.global"

func userFile(name string) string { return name + ".user" }
func chatFile(name string) string { return name + ".chat" }

// entry is a record of the global log.
type entry struct {
	Request chat.ClientRequest `msgpack:"request"`
	Event   chat.ChatEvent     `msgpack:"event"`
}

// storage keeps the global log, the history of every chat and the
// passwords of users in the files of the node.
type storage struct {
	ctx   process.Context
	files map[string]*data.File
}

func newStorage(ctx process.Context) *storage {
	return &storage{ctx: ctx, files: make(map[string]*data.File)}
}

func (st *storage) open(name string) (*data.File, error) {
	if f, ok := st.files[name]; ok {
		return f, nil
	}
	f, _, err := data.Open(st.ctx, name)
	if err != nil {
		return nil, err
	}
	st.files[name] = f
	return f, nil
}

func (st *storage) append(name string, key uint64, v any) error {
	f, err := st.open(name)
	if err != nil {
		return err
	}
	value, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}
	err = f.Write(&data.Record{Key: []byte(strconv.FormatUint(key, 10)), Value: value, Type: data.RecordNormal})
	if f.Torn() {
		delete(st.files, name)
	}
	return err
}

func (st *storage) records(name string) ([]*data.Record, error) {
	f, err := st.open(name)
	if err != nil {
		return nil, err
	}
	return f.ReadAll()
}

// entries reads the global log.
func (st *storage) entries() ([]entry, error) {
	records, err := st.records(globalFile)
	if err != nil {
		return nil, err
	}
	entries := make([]entry, len(records))
	for i, r := range records {
		if err := msgpack.Unmarshal(r.Value, &entries[i]); err != nil {
			return nil, fmt.Errorf("%s record %d: %w", globalFile, i, err)
		}
	}
	return entries, nil
}

func (st *storage) history(name string) ([]chat.ChatEvent, error) {
	records, err := st.records(chatFile(name))
	if err != nil {
		return nil, err
	}
	events := make([]chat.ChatEvent, len(records))
	for i, r := range records {
		if err := msgpack.Unmarshal(r.Value, &events[i]); err != nil {
			return nil, fmt.Errorf("%s record %d: %w", chatFile(name), i, err)
		}
	}
	return events, nil
}

// save appends an entry to the global log and its event to the history
// of the chat.
func (st *storage) save(seq uint64, e entry) error {
	if err := st.append(chatFile(e.Event.Chat), e.Event.Seq, e.Event); err != nil {
		return err
	}
	return st.append(globalFile, seq, e)
}

// authenticate checks the password of a user. The first password a user
// comes with is registered.
func (st *storage) authenticate(name, password string) (bool, error) {
	stored, ok, err := st.password(name)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, st.register(name, password)
	}
	return stored == password, nil
}

func (st *storage) password(name string) (string, bool, error) {
	file, err := st.ctx.OpenFile(userFile(name))
	if errors.Is(err, process.ErrFileNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var (
		password []byte
		buf      = make([]byte, 256)
	)
	for {
		n, err := file.Read(buf, int64(len(password)))
		if err != nil {
			return "", false, err
		}
		if n == 0 {
			return string(password), true, nil
		}
		password = append(password, buf[:n]...)
	}
}

func (st *storage) register(name, password string) error {
	file, err := st.ctx.CreateFile(userFile(name))
	if errors.Is(err, process.ErrFileExists) {
		return nil
	}
	if err != nil {
		return err
	}
	n, err := file.Append([]byte(password))
	if err != nil {
		return err
	}
	if n != len(password) {
		return process.ErrStorageFull
	}
	return nil
}
