package classifier

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/zulandar/modelyard/internal/fsutil"
)

// Format is the envelope format tag written to model files.
const Format = "modelyard.classifier/v1"

// Model kinds.
const (
	KindLinear   = "linear"
	KindLogistic = "logistic"
)

type envelope struct {
	Format string          `json:"format"`
	Kind   string          `json:"kind"`
	Model  json.RawMessage `json:"model"`
}

// DecodeError reports a model file that exists but is not a valid model.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("classifier: decode: %v", e.Err)
	}
	return fmt.Sprintf("classifier: decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Marshal encodes a built-in classifier into its file envelope.
func Marshal(c Classifier) ([]byte, error) {
	var kind string
	switch c.(type) {
	case *Linear:
		kind = KindLinear
	case *Logistic:
		kind = KindLogistic
	default:
		return nil, fmt.Errorf("classifier: marshal: unsupported type %T", c)
	}
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("classifier: marshal: %w", err)
	}
	data, err := json.MarshalIndent(envelope{Format: Format, Kind: kind, Model: body}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("classifier: marshal: %w", err)
	}
	return append(data, '\n'), nil
}

// Unmarshal decodes an envelope. Failures are *DecodeError.
func Unmarshal(data []byte) (Classifier, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if env.Format != Format {
		return nil, &DecodeError{Err: fmt.Errorf("unknown format %q", env.Format)}
	}

	switch env.Kind {
	case KindLinear:
		var m Linear
		if err := json.Unmarshal(env.Model, &m); err != nil {
			return nil, &DecodeError{Err: err}
		}
		if len(m.Weights) == 0 {
			return nil, &DecodeError{Err: fmt.Errorf("linear model has no weights")}
		}
		return &m, nil
	case KindLogistic:
		var m Logistic
		if err := json.Unmarshal(env.Model, &m); err != nil {
			return nil, &DecodeError{Err: err}
		}
		if err := m.validate(); err != nil {
			return nil, &DecodeError{Err: err}
		}
		return &m, nil
	default:
		return nil, &DecodeError{Err: fmt.Errorf("unknown kind %q", env.Kind)}
	}
}

// Save writes c to path atomically.
func Save(path string, c Classifier) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("classifier: save: %w", err)
	}
	return nil
}

// Load reads a classifier from path. A missing file returns an error that
// satisfies errors.Is(err, fs.ErrNotExist); an unreadable or invalid file
// returns *DecodeError.
func Load(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("classifier: load: %w", err)
		}
		return nil, &DecodeError{Path: path, Err: err}
	}
	c, err := Unmarshal(data)
	if err != nil {
		if de, ok := err.(*DecodeError); ok {
			de.Path = path
		}
		return nil, err
	}
	return c, nil
}
