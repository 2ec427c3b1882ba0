package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Topic reference strategies accepted by NewTopicReference.
const (
	TopicLinksAuto    = "auto"
	TopicLinksSymlink = "symlink"
	TopicLinksPointer = "pointer"
)

// TopicReference links a topic directory entry to a canonical record.
type TopicReference interface {
	// Put creates or replaces the reference at refPath pointing at target.
	Put(refPath, target, baseID string) error
	// Resolve returns the canonical path a reference points at.
	Resolve(refPath string) (string, error)
	Kind() string
}

type pointerFile struct {
	ReferencePath string `json:"reference_path"`
	BaseID        string `json:"base_id,omitempty"`
}

type symlinkReference struct{}

func (symlinkReference) Kind() string { return TopicLinksSymlink }

func (symlinkReference) Put(refPath, target, _ string) error {
	abs, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("absolute path for %s: %w", target, err)
	}
	if err := removeIfExists(refPath); err != nil {
		return err
	}
	if err := os.Symlink(abs, refPath); err != nil {
		return fmt.Errorf("symlink %s: %w", refPath, err)
	}
	return nil
}

func (symlinkReference) Resolve(refPath string) (string, error) {
	return resolveAny(refPath)
}

type pointerReference struct{}

func (pointerReference) Kind() string { return TopicLinksPointer }

func (pointerReference) Put(refPath, target, baseID string) error {
	data, err := json.MarshalIndent(pointerFile{ReferencePath: target, BaseID: baseID}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pointer: %w", err)
	}
	if err := removeIfExists(refPath); err != nil {
		return err
	}
	if err := os.WriteFile(refPath, data, 0o600); err != nil {
		return fmt.Errorf("write pointer %s: %w", refPath, err)
	}
	return nil
}

func (pointerReference) Resolve(refPath string) (string, error) {
	return resolveAny(refPath)
}

// fallbackReference tries symlinks and degrades to pointer files when the
// filesystem refuses them.
type fallbackReference struct {
	primary, secondary TopicReference
}

func (f fallbackReference) Kind() string { return f.primary.Kind() }

func (f fallbackReference) Put(refPath, target, baseID string) error {
	if err := f.primary.Put(refPath, target, baseID); err != nil {
		return f.secondary.Put(refPath, target, baseID)
	}
	return nil
}

func (f fallbackReference) Resolve(refPath string) (string, error) {
	return resolveAny(refPath)
}

// NewTopicReference returns the strategy named by kind. For "auto" it tests
// symlink support once inside dir.
func NewTopicReference(kind, dir string) (TopicReference, error) {
	switch kind {
	case TopicLinksSymlink:
		return symlinkReference{}, nil
	case TopicLinksPointer:
		return pointerReference{}, nil
	case TopicLinksAuto, "":
		if symlinksSupported(dir) {
			return fallbackReference{primary: symlinkReference{}, secondary: pointerReference{}}, nil
		}
		return pointerReference{}, nil
	default:
		return nil, fmt.Errorf("unknown topic link strategy %q", kind)
	}
}

func symlinksSupported(dir string) bool {
	target := filepath.Join(dir, ".symlink_check_target")
	link := filepath.Join(dir, ".symlink_check")
	defer func() {
		_ = os.Remove(link)
		_ = os.Remove(target)
	}()
	if err := os.WriteFile(target, nil, 0o600); err != nil {
		return false
	}
	_ = os.Remove(link)
	return os.Symlink(target, link) == nil
}

// resolveAny follows a symlink reference or decodes a pointer file.
func resolveAny(refPath string) (string, error) {
	info, err := os.Lstat(refPath)
	if err != nil {
		return "", fmt.Errorf("stat reference %s: %w", refPath, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(refPath)
		if err != nil {
			return "", fmt.Errorf("read link %s: %w", refPath, err)
		}
		return target, nil
	}
	data, err := os.ReadFile(refPath) // #nosec G304 -- path built from the archive root
	if err != nil {
		return "", fmt.Errorf("read pointer %s: %w", refPath, err)
	}
	var ptr pointerFile
	if err := json.Unmarshal(data, &ptr); err != nil {
		return "", fmt.Errorf("decode pointer %s: %w", refPath, err)
	}
	if ptr.ReferencePath == "" {
		return "", fmt.Errorf("pointer %s has no reference_path", refPath)
	}
	return ptr.ReferencePath, nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("replace reference %s: %w", path, err)
	}
	return nil
}
