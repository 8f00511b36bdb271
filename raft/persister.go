package raft

import (
	"dsbuild/process"
	"dsbuild/storage/data"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// State is what a replica keeps across restarts.
type State struct {
	CurrentTerm int64
	VotedFor    int
	Log         []Entry
	SeqNum      uint64
}

// Persister keeps the replica state in record files of the node storage.
// Term, vote and sequence number files are append-only; the last record
// wins. A vote for nobody is a deleted record. The log file holds one
// record per entry and is rewritten when a suffix is dropped.
type Persister struct {
	ctx   process.Context
	files map[string]*data.File
}

func MakePersister(ctx process.Context) *Persister {
	return &Persister{ctx: ctx, files: make(map[string]*data.File)}
}

func (ps *Persister) open(name string) (*data.File, []*data.Record, error) {
	df, records, err := data.Open(ps.ctx, name)
	if err != nil {
		return nil, nil, err
	}
	ps.files[name] = df
	return df, records, nil
}

func lastRecord(records []*data.Record) *data.Record {
	if len(records) == 0 {
		return nil
	}
	return records[len(records)-1]
}

// Load reads the persisted state, creating missing files.
func (ps *Persister) Load() (*State, error) {
	st := &State{VotedFor: none}

	_, records, err := ps.open(currentTermFile)
	if err != nil {
		return nil, err
	}
	if r := lastRecord(records); r != nil {
		if st.CurrentTerm, err = strconv.ParseInt(string(r.Value), 10, 64); err != nil {
			return nil, fmt.Errorf("%s: %w", currentTermFile, err)
		}
	}

	_, records, err = ps.open(voteForFile)
	if err != nil {
		return nil, err
	}
	if r := lastRecord(records); r != nil && r.Type != data.RecordDeleted {
		if st.VotedFor, err = strconv.Atoi(string(r.Value)); err != nil {
			return nil, fmt.Errorf("%s: %w", voteForFile, err)
		}
	}

	_, records, err = ps.open(seqNumFile)
	if err != nil {
		return nil, err
	}
	if r := lastRecord(records); r != nil {
		if st.SeqNum, err = strconv.ParseUint(string(r.Value), 10, 64); err != nil {
			return nil, fmt.Errorf("%s: %w", seqNumFile, err)
		}
	}

	_, records, err = ps.open(logFile)
	if err != nil {
		return nil, err
	}
	st.Log = make([]Entry, 0, len(records))
	for _, r := range records {
		var e Entry
		if err := json.Unmarshal(r.Value, &e); err != nil {
			return nil, fmt.Errorf("%s: %w", logFile, err)
		}
		st.Log = append(st.Log, e)
	}
	return st, nil
}

func (ps *Persister) write(name string, record *data.Record) error {
	df, ok := ps.files[name]
	if !ok {
		var err error
		if df, _, err = ps.open(name); err != nil {
			return err
		}
	}
	if err := df.Write(record); err != nil {
		if df.Torn() {
			// reopening cuts the partial record off
			delete(ps.files, name)
		}
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (ps *Persister) SaveTerm(term int64) error {
	return ps.write(currentTermFile, &data.Record{
		Key:   []byte("term"),
		Value: []byte(strconv.FormatInt(term, 10)),
	})
}

func (ps *Persister) SaveVote(votedFor int) error {
	if votedFor == none {
		return ps.write(voteForFile, &data.Record{Key: []byte("vote"), Type: data.RecordDeleted})
	}
	return ps.write(voteForFile, &data.Record{
		Key:   []byte("vote"),
		Value: []byte(strconv.Itoa(votedFor)),
	})
}

func (ps *Persister) SaveSeqNum(seq uint64) error {
	return ps.write(seqNumFile, &data.Record{
		Key:   []byte("seq"),
		Value: []byte(strconv.FormatUint(seq, 10)),
	})
}

// AppendLog persists entries which start at index from.
func (ps *Persister) AppendLog(from int64, entries []Entry) error {
	for i, e := range entries {
		value, err := json.Marshal(e)
		if err != nil {
			return err
		}
		record := &data.Record{
			Key:   []byte(strconv.FormatInt(from+int64(i), 10)),
			Value: value,
		}
		if err := ps.write(logFile, record); err != nil {
			return err
		}
	}
	return nil
}

// RewriteLog replaces the log file with entries.
func (ps *Persister) RewriteLog(entries []Entry) error {
	delete(ps.files, logFile)
	if err := ps.ctx.DeleteFile(logFile); err != nil && !errors.Is(err, process.ErrFileNotFound) {
		return fmt.Errorf("delete %s: %w", logFile, err)
	}
	f, err := ps.ctx.CreateFile(logFile)
	if err != nil {
		return fmt.Errorf("create %s: %w", logFile, err)
	}
	ps.files[logFile] = data.NewFile(f)
	return ps.AppendLog(0, entries)
}
