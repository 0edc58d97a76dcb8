package store

import (
	"encoding/json"
	"fmt"
	"os"
)

// The identifier counter lives next to the task file so ids stay unique
// across deletes and restarts without changing the task file schema.
type seqFile struct {
	NextID int `json:"next_id"`
}

func (s *Store) seqPath() string {
	return s.tasksPath + ".seq"
}

func (s *Store) loadSeq(maxID int) error {
	s.nextID = maxID + 1
	data, err := os.ReadFile(s.seqPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", ErrIO, s.seqPath(), err)
	}
	var seq seqFile
	if err := json.Unmarshal(data, &seq); err != nil {
		return fmt.Errorf("load %s: %w: %v", s.seqPath(), ErrCorruptStore, err)
	}
	if seq.NextID > s.nextID {
		s.nextID = seq.NextID
	}
	return nil
}

func (s *Store) saveSeq() error {
	data, err := json.Marshal(seqFile{NextID: s.nextID})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.seqPath(), data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrIO, s.seqPath(), err)
	}
	return nil
}
