package firez

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Format selects an artifact encoding.
type Format string

// Supported artifact formats.
const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// Ext returns the file extension used for f, without the dot.
func (f Format) Ext() string {
	if f == FormatMsgpack {
		return "msgpack"
	}
	return "json"
}

// ParseFormat parses a format name. The empty string means FormatJSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatMsgpack, "mp", "msgp":
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("unknown format %q", s)
	}
}

// FormatForPath guesses the format from a file extension.
// Anything that is not a MessagePack extension is treated as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".msgpack", ".mp", ".msgp":
		return FormatMsgpack
	default:
		return FormatJSON
	}
}

// ExportOptions controls Export and ExportFile.
type ExportOptions struct {
	// Format defaults to FormatJSON.
	Format Format
	// Indent, when non-empty, pretty-prints JSON output. Ignored for MessagePack.
	Indent string
}

// Export encodes t to w. The whole artifact is encoded before anything is
// written, so a SerializationError never leaves partial output in w.
func Export(w io.Writer, t *Ashes, opts ExportOptions) error {
	data, err := encode(t, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func encode(t *Ashes, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer
	switch opts.Format {
	case "", FormatJSON:
		if err := t.encodeJSON(&buf); err != nil {
			return nil, err
		}
		if opts.Indent == "" {
			return buf.Bytes(), nil
		}
		var out bytes.Buffer
		if err := json.Indent(&out, buf.Bytes(), "", opts.Indent); err != nil {
			return nil, fmt.Errorf("indenting artifact: %w", err)
		}
		return out.Bytes(), nil
	case FormatMsgpack:
		if err := t.EncodeMsgpack(&buf); err != nil {
			var se *SerializationError
			if errors.As(err, &se) {
				return nil, err
			}
			return nil, &SerializationError{Err: err}
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", opts.Format)
	}
}

// artifactMode is the permission of published artifacts. CreateTemp
// starts at 0600.
const artifactMode = 0o644

// ExportFile writes t to path atomically: the artifact is written to a
// temporary file in the same directory, synced, and renamed into place.
// On any failure the temporary file is removed and path is untouched.
// The published file has mode 0644.
func ExportFile(path string, t *Ashes, opts ExportOptions) (err error) {
	data, err := encode(t, opts)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()           //nolint:errcheck // already failing
			_ = os.Remove(tmp.Name()) //nolint:errcheck // already failing
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err = tmp.Chmod(artifactMode); err != nil {
		return fmt.Errorf("setting artifact mode: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("syncing artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("closing artifact: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("publishing artifact: %w", err)
	}
	return nil
}

// Import reads a tree encoded in the given format.
func Import(r io.Reader, format Format) (*Ashes, error) {
	switch format {
	case "", FormatJSON:
		return ImportJSON(r)
	case FormatMsgpack:
		return ImportMsgpack(r)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// ImportFile reads the artifact at path, choosing the format by extension.
func ImportFile(path string) (*Ashes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only

	t, err := Import(f, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
