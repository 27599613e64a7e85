package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadError represents an error that occurred while collecting input files.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// BatchFile is one batch document read from disk.
type BatchFile struct {
	Path string
	Data []byte
}

// FindJSONFiles expands paths into JSON files. A directory contributes
// every *.json file beneath it in lexical order; a file is taken as is,
// whatever its extension. The result keeps argument order.
func FindJSONFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", p)}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("error accessing %s: %v", p, err)}
		}

		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".json") {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("error scanning %s: %v", p, err)}
		}
		sort.Strings(found)
		files = append(files, found...)
	}

	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: "no JSON files found"}
	}
	return files, nil
}

// LoadBatchFiles expands paths and reads every file.
func LoadBatchFiles(paths []string) ([]BatchFile, error) {
	names, err := FindJSONFiles(paths)
	if err != nil {
		return nil, err
	}

	out := make([]BatchFile, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("read %s: %v", name, err)}
		}
		out = append(out, BatchFile{Path: name, Data: data})
	}
	return out, nil
}
