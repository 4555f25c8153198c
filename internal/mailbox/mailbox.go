// Package mailbox defines the fileclip on-disk protocol.
//
// A mailbox is a directory visible to both a requester (inside a container)
// and a watcher (on the host). Every request and every result is a single
// JSON object in its own file, named after the request id:
//
//	fileclip_request_<request_id>.json
//	fileclip_results_<request_id>.json
//
// Files are written under a dot-prefixed temporary name, synced, and renamed
// into place, so the other side never observes a partially written record.
package mailbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Action identifies what a request asks the watcher to do.
type Action string

const (
	ActionPing      Action = "ping"
	ActionCopyFiles Action = "copy_files"
)

const (
	RequestPrefix = "fileclip_request_"
	ResultPrefix  = "fileclip_results_"
	Suffix        = ".json"

	// UnknownID keys the result of a request whose id could not be recovered.
	UnknownID = "unknown"

	// MaxRecordSize is the largest record we will read (16 MiB).
	MaxRecordSize = 16 * 1024 * 1024

	tempPrefix = "."
	tempSuffix = ".tmp"
)

var (
	// ErrMissingField is returned by Request.Validate when sender or request_id is empty.
	ErrMissingField = errors.New("missing request_id or sender")
	// ErrInvalidID means a request id cannot name a file inside the mailbox.
	ErrInvalidID = errors.New("invalid request_id")
)

// Request is written by the requester and consumed by the watcher.
type Request struct {
	Action    Action   `json:"action"`
	Sender    string   `json:"sender"`
	RequestID string   `json:"request_id"`
	Paths     []string `json:"paths,omitempty"`
}

// Validate reports whether the fields needed for correlation are present.
func (r *Request) Validate() error {
	if r.RequestID == "" || r.Sender == "" {
		return ErrMissingField
	}
	return nil
}

// Result is written by the watcher and consumed by the requester.
type Result struct {
	Sender    string   `json:"sender"`
	RequestID string   `json:"request_id"`
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Errors    []string `json:"errors"`
}

// ProtocolError reports a mailbox record that is malformed or incomplete.
type ProtocolError struct {
	Path string
	Err  error
}

func (e *ProtocolError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("protocol: %v", e.Err)
	}
	return fmt.Sprintf("protocol: %s: %v", e.Path, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewRequestID returns a fresh correlation id.
func NewRequestID() string { return uuid.NewString() }

// RequestName returns the file name of the request with the given id.
func RequestName(id string) string { return RequestPrefix + id + Suffix }

// ResultName returns the file name of the result with the given id.
func ResultName(id string) string { return ResultPrefix + id + Suffix }

// IsRequestName reports whether name is a request file name.
func IsRequestName(name string) bool {
	_, ok := idFrom(name, RequestPrefix)
	return ok
}

// IsResultName reports whether name is a result file name.
func IsResultName(name string) bool {
	_, ok := idFrom(name, ResultPrefix)
	return ok
}

// RequestIDFromName extracts the request id from a request file name.
func RequestIDFromName(name string) (string, bool) {
	return idFrom(name, RequestPrefix)
}

func idFrom(name, prefix string) (string, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, Suffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, prefix), Suffix)
	if !ValidID(id) {
		return "", false
	}
	return id, true
}

// ValidID reports whether id can be embedded in a mailbox file name. It must
// be non-empty and free of path separators and NUL.
func ValidID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/\\\x00")
}

// DecodeRequest parses a request record.
func DecodeRequest(b []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, &ProtocolError{Err: err}
	}
	return &r, nil
}

// DecodeResult parses a result record.
func DecodeResult(b []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, &ProtocolError{Err: err}
	}
	if r.Errors == nil {
		r.Errors = []string{}
	}
	return &r, nil
}

// Mailbox is a handle on a shared mailbox directory.
type Mailbox struct {
	dir string
}

// New returns a Mailbox rooted at dir. The directory is not created.
func New(dir string) *Mailbox {
	return &Mailbox{dir: filepath.Clean(dir)}
}

// Dir returns the mailbox directory.
func (m *Mailbox) Dir() string { return m.dir }

// Ensure creates the mailbox directory if needed.
func (m *Mailbox) Ensure() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("mailbox: %w", err)
	}
	return nil
}

// RequestPath returns the full path of the request file for id.
func (m *Mailbox) RequestPath(id string) string {
	return filepath.Join(m.dir, RequestName(id))
}

// ResultPath returns the full path of the result file for id.
func (m *Mailbox) ResultPath(id string) string {
	return filepath.Join(m.dir, ResultName(id))
}

// WriteRequest atomically publishes req and returns its path.
func (m *Mailbox) WriteRequest(req *Request) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}
	if !ValidID(req.RequestID) {
		return "", &ProtocolError{Err: fmt.Errorf("%w %q", ErrInvalidID, req.RequestID)}
	}
	path := m.RequestPath(req.RequestID)
	if err := writeAtomic(path, raw); err != nil {
		return "", err
	}
	return path, nil
}

// WriteResult atomically publishes res and returns its path. A result for the
// same id that is already present is replaced. An empty id is written under
// UnknownID; an id that is not ValidID is refused.
func (m *Mailbox) WriteResult(res *Result) (string, error) {
	out := *res
	if out.Errors == nil {
		out.Errors = []string{}
	}
	raw, err := json.Marshal(&out)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	id := out.RequestID
	if id == "" {
		id = UnknownID
	}
	if !ValidID(id) {
		return "", &ProtocolError{Err: fmt.Errorf("%w %q", ErrInvalidID, id)}
	}
	path := m.ResultPath(id)
	if err := writeAtomic(path, raw); err != nil {
		return "", err
	}
	return path, nil
}

// ReadRequest reads and decodes the request file at path. Filesystem errors
// are returned wrapped; malformed content yields a *ProtocolError.
func (m *Mailbox) ReadRequest(path string) (*Request, error) {
	raw, err := readRecord(path)
	if err != nil {
		return nil, err
	}
	req, err := DecodeRequest(raw)
	if err != nil {
		return nil, withPath(err, path)
	}
	return req, nil
}

// ReadResult reads and decodes the result file for id.
func (m *Mailbox) ReadResult(id string) (*Result, error) {
	path := m.ResultPath(id)
	raw, err := readRecord(path)
	if err != nil {
		return nil, err
	}
	res, err := DecodeResult(raw)
	if err != nil {
		return nil, withPath(err, path)
	}
	return res, nil
}

// Remove deletes path. A file that is already gone is not an error.
func (m *Mailbox) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("mailbox remove: %w", err)
	}
	return nil
}

// Exists reports whether path is present.
func (m *Mailbox) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Pending returns the paths of all request files currently in the mailbox,
// sorted by name.
func (m *Mailbox) Pending() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("mailbox list: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsRequestName(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(m.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func readRecord(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("mailbox read: %w", err)
	}
	if info.Size() > MaxRecordSize {
		return nil, &ProtocolError{Path: path, Err: fmt.Errorf("record too large (%d bytes)", info.Size())}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mailbox read: %w", err)
	}
	return raw, nil
}

func withPath(err error, path string) error {
	var pe *ProtocolError
	if errors.As(err, &pe) && pe.Path == "" {
		pe.Path = path
	}
	return err
}

// writeAtomic writes data to a temporary sibling of path and renames it into
// place once it is fully flushed.
func writeAtomic(path string, data []byte) error {
	dir, name := filepath.Split(path)
	f, err := os.CreateTemp(dir, tempPrefix+name+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("mailbox write: %w", err)
	}
	tmp := f.Name()
	cleanup := func() { _ = os.Remove(tmp) }

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("mailbox write: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		cleanup()
		return fmt.Errorf("mailbox sync: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return fmt.Errorf("mailbox close: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("mailbox chmod: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		cleanup()
		return fmt.Errorf("mailbox publish: %w", err)
	}
	return nil
}
