// Package document keeps the interview's shared code, language and test
// vectors in step between the two participants.
//
// Every edit overwrites the local field and is broadcast whole; a received
// change overwrites the local field unconditionally. The last change to
// arrive wins per field. There is no merge and no conflict detection, so by
// convention one participant drives code and language at a time. Only the
// host may change test vectors.
package document

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/BioHazard786/Warproom/internal/protocol"
)

var (
	ErrNotPrivileged       = errors.New("only the host may edit test vectors")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// Language identifies what the shared code is written in.
type Language string

const (
	Python     Language = "python"
	Java       Language = "java"
	CPP        Language = "cpp"
	JavaScript Language = "javascript"
)

var languages = []Language{Python, Java, CPP, JavaScript}

// Languages returns the supported languages.
func Languages() []Language { return slices.Clone(languages) }

func (l Language) Valid() bool { return slices.Contains(languages, l) }

// TestVector is one input with its expected output.
type TestVector struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// Document is the shared state both sides observe.
type Document struct {
	Code     string       `json:"code"`
	Language Language     `json:"language"`
	Vectors  []TestVector `json:"vectors"`
}

// Field names a part of the Document.
type Field string

const (
	FieldCode     Field = "code"
	FieldLanguage Field = "language"
	FieldVectors  Field = "test-vectors"
)

type CodeChanged struct {
	Code string `json:"code"`
}

type LanguageChanged struct {
	Language Language `json:"language"`
}

type TestVectorsChanged struct {
	Vectors []TestVector `json:"vectors"`
}

// Broadcaster sends a change to the peer.
type Broadcaster func(msgType string, payload any) error

// Synchronizer owns one participant's copy of the Document.
type Synchronizer struct {
	role protocol.Role
	send Broadcaster

	mu  sync.Mutex
	doc Document
}

// NewSynchronizer starts from an empty document in Python.
func NewSynchronizer(role protocol.Role, send Broadcaster) *Synchronizer {
	return &Synchronizer{
		role: role,
		send: send,
		doc:  Document{Language: Python},
	}
}

// Snapshot returns a copy of the current document.
func (s *Synchronizer) Snapshot() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.doc
	d.Vectors = slices.Clone(s.doc.Vectors)
	return d
}

// EditCode replaces the code locally and broadcasts it. The local edit is
// kept even if the broadcast fails.
func (s *Synchronizer) EditCode(code string) error {
	s.mu.Lock()
	s.doc.Code = code
	s.mu.Unlock()
	return s.broadcast(protocol.TypeCodeChanged, CodeChanged{Code: code})
}

func (s *Synchronizer) EditLanguage(lang Language) error {
	if !lang.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	s.mu.Lock()
	s.doc.Language = lang
	s.mu.Unlock()
	return s.broadcast(protocol.TypeLanguageChanged, LanguageChanged{Language: lang})
}

// EditTestVectors replaces the test vectors. It is refused for anyone but
// the host, before anything changes locally.
func (s *Synchronizer) EditTestVectors(vectors []TestVector) error {
	if s.role != protocol.RoleHost {
		return ErrNotPrivileged
	}
	vectors = slices.Clone(vectors)
	s.mu.Lock()
	s.doc.Vectors = vectors
	s.mu.Unlock()
	return s.broadcast(protocol.TypeTestVectorsChanged, TestVectorsChanged{Vectors: vectors})
}

// PushAll broadcasts every field, so a newly bound peer starts from this
// side's document.
func (s *Synchronizer) PushAll() error {
	d := s.Snapshot()
	return errors.Join(
		s.broadcast(protocol.TypeLanguageChanged, LanguageChanged{Language: d.Language}),
		s.broadcast(protocol.TypeCodeChanged, CodeChanged{Code: d.Code}),
		s.broadcast(protocol.TypeTestVectorsChanged, TestVectorsChanged{Vectors: d.Vectors}),
	)
}

// Apply overwrites the field carried by a change from the peer and reports
// which field it was.
func (s *Synchronizer) Apply(msg *protocol.Message) (Field, error) {
	switch msg.Type {
	case protocol.TypeCodeChanged:
		var p CodeChanged
		if err := msg.DecodePayload(&p); err != nil {
			return "", err
		}
		s.mu.Lock()
		s.doc.Code = p.Code
		s.mu.Unlock()
		return FieldCode, nil

	case protocol.TypeLanguageChanged:
		var p LanguageChanged
		if err := msg.DecodePayload(&p); err != nil {
			return "", err
		}
		if !p.Language.Valid() {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, p.Language)
		}
		s.mu.Lock()
		s.doc.Language = p.Language
		s.mu.Unlock()
		return FieldLanguage, nil

	case protocol.TypeTestVectorsChanged:
		// Vectors only ever flow from the host.
		if s.role == protocol.RoleHost {
			return "", ErrNotPrivileged
		}
		var p TestVectorsChanged
		if err := msg.DecodePayload(&p); err != nil {
			return "", err
		}
		s.mu.Lock()
		s.doc.Vectors = p.Vectors
		s.mu.Unlock()
		return FieldVectors, nil
	}
	return "", fmt.Errorf("not a document change: %s", msg.Type)
}

func (s *Synchronizer) broadcast(msgType string, payload any) error {
	if s.send == nil {
		return nil
	}
	if err := s.send(msgType, payload); err != nil {
		return fmt.Errorf("broadcast %s: %w", msgType, err)
	}
	return nil
}
