package record

import (
	"encoding/json"
	"fmt"

	"github.com/hsba/emr/internal/platform/formstate"
)

// wireAction is the JSON form of an action in a PATCH body.
type wireAction struct {
	Op       string          `json:"op"`
	Path     string          `json:"path"`
	Value    json.RawMessage `json:"value"`
	Index    *int            `json:"index"`
	Transfer *Transfer       `json:"transfer"`
	ID       string          `json:"id"`
	Patch    map[string]any  `json:"patch"`
}

// DecodeActions parses {"actions":[...]}. Documents are only attached
// through the upload endpoints, so add_document is refused here.
func DecodeActions(body []byte) ([]Action, error) {
	var req struct {
		Actions []wireAction `json:"actions"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if len(req.Actions) == 0 {
		return nil, fmt.Errorf("%w: no actions", ErrInvalidRecord)
	}

	out := make([]Action, 0, len(req.Actions))
	for i, w := range req.Actions {
		a, err := w.action()
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (w wireAction) index() (int, error) {
	if w.Index == nil {
		return 0, fmt.Errorf("%w: %s needs an index", ErrInvalidRecord, w.Op)
	}
	return *w.Index, nil
}

func (w wireAction) transfer() (Transfer, error) {
	if w.Transfer == nil {
		return Transfer{}, fmt.Errorf("%w: %s needs a transfer", ErrInvalidRecord, w.Op)
	}
	return *w.Transfer, nil
}

func (w wireAction) action() (Action, error) {
	switch w.Op {
	case "set":
		path, err := formstate.ParsePath(w.Path)
		if err != nil {
			return nil, err
		}
		var value any
		if len(w.Value) > 0 {
			if err := json.Unmarshal(w.Value, &value); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
			}
		}
		return SetField{Path: path, Value: value}, nil

	case "add_transfer":
		t, err := w.transfer()
		if err != nil {
			return nil, err
		}
		return AddTransfer{Transfer: t}, nil

	case "update_transfer":
		i, err := w.index()
		if err != nil {
			return nil, err
		}
		t, err := w.transfer()
		if err != nil {
			return nil, err
		}
		return UpdateTransfer{Index: i, Transfer: t}, nil

	case "remove_transfer":
		i, err := w.index()
		if err != nil {
			return nil, err
		}
		return RemoveTransfer{Index: i}, nil

	case "update_document":
		if w.ID == "" || len(w.Patch) == 0 {
			return nil, fmt.Errorf("%w: update_document needs id and patch", ErrInvalidRecord)
		}
		return UpdateDocument{ID: w.ID, Patch: w.Patch}, nil

	case "remove_document":
		if w.ID == "" {
			return nil, fmt.Errorf("%w: remove_document needs id", ErrInvalidRecord)
		}
		return RemoveDocument{ID: w.ID}, nil

	case "ensure_default_transfer":
		return EnsureDefaultTransfer{}, nil
	}
	return nil, fmt.Errorf("%w: unsupported op %q", ErrInvalidRecord, w.Op)
}
