// Package ledger keeps the three flat files that track uploads forwarded to
// the validation authority: sent.csv (name;sent-at), response.csv
// (name;status[;message]) and done.csv (done-at;name;sent-at;status[;message]).
// Records are ';' separated and '\n' terminated, without header or escaping.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/intake/internal/common"
	"github.com/dmitrijs2005/intake/internal/filex"
	"github.com/dmitrijs2005/intake/internal/lockx"
)

const (
	SentFile     = "sent.csv"
	ResponseFile = "response.csv"
	DoneFile     = "done.csv"
	LockFile     = ".ledger.lock"

	colSep  = ";"
	lineSep = "\n"

	filePerm = 0o660
)

// Status is the authority's verdict on a forwarded file.
type Status string

const (
	StatusValidated Status = "Validated"
	StatusRejected  Status = "Rejected"
)

// Response is one row of response.csv.
type Response struct {
	Status  Status
	Message string
}

type record struct {
	key  string
	rest string
}

// Ledger serialises operations on its directory with a mutex. Every
// read-modify-write also holds an flock on LockFile, so a server and a
// one-shot reconcile process can share the directory.
type Ledger struct {
	dir  string
	mu   sync.Mutex
	lock *lockx.FileLock
}

func New(dir string) *Ledger {
	return &Ledger{dir: dir, lock: lockx.New(filepath.Join(dir, LockFile))}
}

// exclusive runs fn holding the mutex and the directory lock.
func (l *Ledger) exclusive(fn func() error) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(); err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	defer func() {
		if uerr := l.lock.Unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("unlock ledger: %w", uerr)
		}
	}()
	return fn()
}

func (l *Ledger) Dir() string { return l.dir }

func (l *Ledger) path(name string) string { return filepath.Join(l.dir, name) }

// EnsureReady creates the directory and any missing file, then checks the
// process can read and write each file. Every problem found is listed in
// the returned error, which wraps common.ErrLedgerUnavailable.
func (l *Ledger) EnsureReady() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := filex.EnsureDir(l.dir); err != nil {
		return fmt.Errorf("%w: %v", common.ErrLedgerUnavailable, err)
	}

	var problems []string
	for _, name := range []string{SentFile, ResponseFile, DoneFile} {
		p := l.path(name)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s cannot be created: %v", p, err))
				continue
			}
			f.Close()
		}
		if err := filex.CheckReadWrite(p); err != nil {
			problems = append(problems, fmt.Sprintf("%s is not readable and writable: %v", p, err))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrLedgerUnavailable, strings.Join(problems, "; "))
	}
	return nil
}

// HasBeenSent reports whether key is in the sent log.
func (l *Ledger) HasBeenSent(key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	sent, err := l.read(SentFile)
	if err != nil {
		return false, err
	}
	_, ok := lookup(sent, key)
	return ok, nil
}

// AddSent appends (key, at) to the sent log unless key is already there.
// It reports whether a row was written.
func (l *Ledger) AddSent(key string, at time.Time) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}

	var added bool
	err := l.exclusive(func() error {
		sent, err := l.read(SentFile)
		if err != nil {
			return err
		}
		if _, ok := lookup(sent, key); ok {
			return nil
		}
		if err := l.appendLine(SentFile, key+colSep+formatTime(at)); err != nil {
			return err
		}
		added = true
		return nil
	})
	return added, err
}

// Response returns the authority's verdict for key. The boolean is false
// while no response has been recorded, which is not an error.
func (l *Ledger) Response(key string) (Response, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	responses, err := l.read(ResponseFile)
	if err != nil {
		return Response{}, false, err
	}
	rest, ok := lookup(responses, key)
	if !ok {
		return Response{}, false, nil
	}
	return parseResponse(rest), true, nil
}

// RecordResponse appends the authority's verdict for key. Newlines in the
// message become spaces. The message is always the last column, so it may
// contain the column separator. Recording the same verdict twice is a no-op.
func (l *Ledger) RecordResponse(key string, status Status, message string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if status != StatusValidated && status != StatusRejected {
		return fmt.Errorf("%w: status %q", common.ErrInvalidLedgerField, status)
	}
	message = flattenMessage(message)

	return l.exclusive(func() error {
		responses, err := l.read(ResponseFile)
		if err != nil {
			return err
		}
		if rest, ok := lookup(responses, key); ok && parseResponse(rest) == (Response{Status: status, Message: message}) {
			return nil
		}

		line := key + colSep + string(status)
		if message != "" {
			line += colSep + message
		}
		return l.appendLine(ResponseFile, line)
	})
}

// MarkDone retires key: one row is appended to the done log, then the sent
// and response logs are rewritten without key, each by an atomic rename.
// It returns false, changing nothing, unless key is in both logs.
func (l *Ledger) MarkDone(key string, at time.Time) (bool, error) {
	var retiredNow bool
	err := l.exclusive(func() error {
		sent, err := l.read(SentFile)
		if err != nil {
			return err
		}
		responses, err := l.read(ResponseFile)
		if err != nil {
			return err
		}

		sentAt, ok := lookup(sent, key)
		if !ok {
			return nil
		}
		response, ok := lookup(responses, key)
		if !ok {
			return nil
		}

		// a previous MarkDone may have stopped after the append
		done, err := l.read(DoneFile)
		if err != nil {
			return err
		}
		if !retired(done, key, sentAt) {
			row := formatTime(at) + colSep + key + colSep + sentAt + colSep + response
			if err := l.appendLine(DoneFile, row); err != nil {
				return err
			}
		}

		if err := l.rewrite(SentFile, without(sent, key)); err != nil {
			return err
		}
		if err := l.rewrite(ResponseFile, without(responses, key)); err != nil {
			return err
		}
		retiredNow = true
		return nil
	})
	return retiredNow, err
}

func (l *Ledger) read(name string) ([]record, error) {
	data, err := os.ReadFile(l.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var out []record
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		key, rest, _ := strings.Cut(line, colSep)
		out = append(out, record{key: key, rest: rest})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return out, nil
}

func (l *Ledger) appendLine(name, line string) error {
	f, err := os.OpenFile(l.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	if _, err := f.WriteString(line + lineSep); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", name, err)
	}
	return f.Close()
}

func (l *Ledger) rewrite(name string, records []record) error {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(r.key)
		if r.rest != "" {
			b.WriteString(colSep)
			b.WriteString(r.rest)
		}
		b.WriteString(lineSep)
	}
	if err := filex.WriteFileAtomic(l.path(name), []byte(b.String()), filePerm); err != nil {
		return fmt.Errorf("rewrite %s: %w", name, err)
	}
	return nil
}

// lookup returns the last record for key, matching the legacy reader where
// later rows overwrite earlier ones.
func lookup(records []record, key string) (string, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].key == key {
			return records[i].rest, true
		}
	}
	return "", false
}

func without(records []record, key string) []record {
	out := make([]record, 0, len(records))
	for _, r := range records {
		if r.key != key {
			out = append(out, r)
		}
	}
	return out
}

func retired(done []record, key, sentAt string) bool {
	for _, r := range done {
		// done rows are keyed by timestamp: rest is name;sent-at;...
		parts := strings.SplitN(r.rest, colSep, 3)
		if len(parts) >= 2 && parts[0] == key && parts[1] == sentAt {
			return true
		}
	}
	return false
}

func parseResponse(rest string) Response {
	status, message, _ := strings.Cut(rest, colSep)
	return Response{Status: Status(status), Message: message}
}

func checkKey(key string) error {
	if key == "" || strings.ContainsAny(key, colSep+"\r\n") {
		return fmt.Errorf("%w: key %q", common.ErrInvalidLedgerField, key)
	}
	return nil
}

func flattenMessage(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
