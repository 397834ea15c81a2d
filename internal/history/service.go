// Package history keeps a best-effort local audit trail of the shared
// document: every version written to the blob store is committed to a git
// repository, one commit per change.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"postpilot/internal/document"
)

const documentFile = "document.json"

// Version is one recorded document revision.
type Version struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// Service owns one git repository under dir. Safe for concurrent use within
// a process; concurrent processes are out of scope (the blob store, not this
// trail, is the source of truth).
type Service struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) *Service {
	return &Service{dir: dir}
}

// Record commits the document as its new head revision. Unchanged content is
// a no-op. actor names the writer (scheduler run, sync client, manual).
func (s *Service) Record(doc *document.Document, actor, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	worktree, err := s.open()
	if err != nil {
		return err
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	target := filepath.Join(s.dir, documentFile)
	existing, err := os.ReadFile(target)
	if err == nil && string(existing) == string(append(payload, '\n')) {
		return nil
	}
	if err := os.WriteFile(target, append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write document file: %w", err)
	}

	if _, err := worktree.Add(documentFile); err != nil {
		return fmt.Errorf("git add document: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("git status: %w", err)
	}
	if status.IsClean() {
		return nil
	}

	if _, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  actor,
			Email: fmt.Sprintf("%s@postpilot.local", sanitizeEmail(actor)),
			When:  time.Now(),
		},
	}); err != nil {
		return fmt.Errorf("commit document: %w", err)
	}
	return nil
}

// Versions lists recorded revisions, newest first, up to limit.
func (s *Service) Versions(limit int) ([]Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history repo: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("read history log: %w", err)
	}
	defer iter.Close()

	var versions []Version
	for len(versions) < limit {
		commit, err := iter.Next()
		if err != nil {
			break
		}
		versions = append(versions, Version{
			Hash:    commit.Hash.String(),
			Message: strings.TrimSpace(commit.Message),
			Author:  commit.Author.Name,
			When:    commit.Author.When,
		})
	}
	return versions, nil
}

func (s *Service) open() (*git.Worktree, error) {
	repo, err := git.PlainOpen(s.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
		repo, err = git.PlainInit(s.dir, false)
		if err != nil {
			return nil, fmt.Errorf("init history repo: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open history repo: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}
	return worktree, nil
}

func sanitizeEmail(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
			return r
		case r == ' ':
			return '.'
		default:
			return -1
		}
	}, name)
	if cleaned == "" {
		return "writer"
	}
	return strings.ToLower(cleaned)
}
