package object

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// VerifyReport summarizes a store integrity check.
type VerifyReport struct {
	Objects int
	Corrupt []Hash
}

// Verify re-reads every loose object and checks that its content still
// hashes to its address. Corrupt objects are collected, not fatal; only an
// unreadable store aborts the walk.
func (s *Store) Verify() (*VerifyReport, error) {
	report := &VerifyReport{}

	objectsDir := filepath.Join(s.root, "objects")
	fanouts, err := os.ReadDir(objectsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return report, nil
		}
		return nil, fmt.Errorf("verify: %w", err)
	}

	for _, fanout := range fanouts {
		if !fanout.IsDir() || len(fanout.Name()) != 2 {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(objectsDir, fanout.Name()))
		if err != nil {
			return nil, fmt.Errorf("verify: %w", err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || strings.HasPrefix(name, ".tmp-") {
				continue
			}
			h := Hash(fanout.Name() + name)
			if !IsHexHash(string(h)) {
				continue
			}

			objType, data, err := s.Read(h)
			if err != nil {
				report.Corrupt = append(report.Corrupt, h)
				continue
			}
			if HashObject(objType, data) != h {
				report.Corrupt = append(report.Corrupt, h)
				continue
			}
			report.Objects++
		}
	}

	return report, nil
}
