package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-macro-core/internal/macro"
)

// itemView is an item as the editor sees it. Item IDs are only stable
// within one edit, so pairs are reported by position.
type itemView struct {
	macro.FlatItem
	PairPosition int `json:"pair_position,omitempty"`
}

func itemViews(list *macro.List) []itemView {
	items := list.Items()
	out := make([]itemView, len(items))
	for i, it := range items {
		out[i] = itemView{FlatItem: it}
		if pair, ok := list.PairOf(it.ID); ok {
			out[i].PairPosition = pair.Position
		}
	}
	return out
}

func writeItems(w http.ResponseWriter, status int, list *macro.List, extra map[string]any) {
	body := map[string]any{"items": itemViews(list), "count": list.Len()}
	for k, v := range extra {
		body[k] = v
	}
	writeJSON(w, status, body)
}

// itemPosition extracts the 1-based {position} URL parameter.
func itemPosition(w http.ResponseWriter, r *http.Request) (int, bool) {
	pos, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil || pos < 1 {
		writeBadRequest(w, "invalid item position")
		return 0, false
	}
	return pos, true
}

// itemAt resolves a position to an item inside an edit.
func itemAt(list *macro.List, position int) (macro.FlatItem, error) {
	it, ok := list.At(position)
	if !ok {
		return macro.FlatItem{}, fmt.Errorf("%w: no item at position %d", macro.ErrItemNotFound, position)
	}
	return it, nil
}

// handleListItems returns a macro's items with depth and pair positions.
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	m, err := s.library.GetMacro(r.Context(), id)
	if err != nil {
		writeMacroError(w, err, "get macro")
		return
	}
	list, err := s.library.OpenList(m)
	if err != nil {
		writeMacroError(w, err, "open item list")
		return
	}
	writeItems(w, http.StatusOK, list, nil)
}

// addItemRequest is the body for POST /macros/{id}/items.
type addItemRequest struct {
	Type     string         `json:"type"`
	Position int            `json:"position"` // 1-based; 0 appends
	Block    bool           `json:"block"`    // also insert the closing tag
	Enabled  *bool          `json:"enabled"`
	Settings macro.Settings `json:"settings"`
}

// handleAddItem inserts an item, or a bracket pair when block is set.
func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Type == "" {
		writeBadRequest(w, "type is required")
		return
	}

	var added []int
	list, err := s.library.EditItems(r.Context(), id, func(l *macro.List) error {
		pos := req.Position
		if pos == 0 {
			pos = l.Len() + 1
		}

		if req.Block {
			openID, closeID, err := l.AddBlock(pos, req.Type)
			if err != nil {
				return err
			}
			if len(req.Settings) > 0 {
				open, _ := l.Item(openID)
				if err := l.UpdateSettings(openID, open.Settings.Merge(req.Settings)); err != nil {
					return err
				}
			}
			if req.Enabled != nil {
				if err := l.SetEnabled(openID, *req.Enabled); err != nil {
					return err
				}
			}
			open, _ := l.Item(openID)
			closing, _ := l.Item(closeID)
			added = []int{open.Position, closing.Position}
			return nil
		}

		item, err := l.Registry().NewItem(req.Type)
		if err != nil {
			return err
		}
		item.Settings = item.Settings.Merge(req.Settings)
		if req.Enabled != nil {
			item.Enabled = *req.Enabled
		}
		itemID, err := l.InsertItem(pos, item)
		if err != nil {
			return err
		}
		it, _ := l.Item(itemID)
		added = []int{it.Position}
		return nil
	})
	if err != nil {
		writeMacroError(w, err, "add item")
		return
	}
	writeItems(w, http.StatusCreated, list, map[string]any{"added": added})
}

// updateItemRequest is the body for PATCH /macros/{id}/items/{position}.
// Settings are merged over the item's current settings.
type updateItemRequest struct {
	Enabled  *bool          `json:"enabled"`
	Settings macro.Settings `json:"settings"`
}

// handleUpdateItem toggles an item or updates its settings.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	pos, ok := itemPosition(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	list, err := s.library.EditItems(r.Context(), id, func(l *macro.List) error {
		it, err := itemAt(l, pos)
		if err != nil {
			return err
		}
		if req.Settings != nil {
			if err := l.UpdateSettings(it.ID, it.Settings.Merge(req.Settings)); err != nil {
				return err
			}
		}
		if req.Enabled != nil {
			return l.SetEnabled(it.ID, *req.Enabled)
		}
		return nil
	})
	if err != nil {
		writeMacroError(w, err, "update item")
		return
	}
	writeItems(w, http.StatusOK, list, nil)
}

// handleRemoveItem deletes the item at a position. Its former pair is
// left in place and becomes unpaired.
func (s *Server) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	pos, ok := itemPosition(w, r)
	if !ok {
		return
	}

	list, err := s.library.EditItems(r.Context(), id, func(l *macro.List) error {
		it, err := itemAt(l, pos)
		if err != nil {
			return err
		}
		return l.Remove(it.ID)
	})
	if err != nil {
		writeMacroError(w, err, "remove item")
		return
	}
	writeItems(w, http.StatusOK, list, nil)
}

// moveItemRequest is the body for POST /macros/{id}/items/{position}/move.
type moveItemRequest struct {
	To int `json:"to"`
}

// handleMoveItem relocates an item to a new position.
func (s *Server) handleMoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	pos, ok := itemPosition(w, r)
	if !ok {
		return
	}
	var req moveItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	list, err := s.library.EditItems(r.Context(), id, func(l *macro.List) error {
		it, err := itemAt(l, pos)
		if err != nil {
			return err
		}
		return l.Move(it.ID, req.To)
	})
	if err != nil {
		writeMacroError(w, err, "move item")
		return
	}
	writeItems(w, http.StatusOK, list, nil)
}

// handleClearItems removes every item of a macro.
func (s *Server) handleClearItems(w http.ResponseWriter, r *http.Request) {
	id, ok := macroID(w, r)
	if !ok {
		return
	}
	list, err := s.library.EditItems(r.Context(), id, func(l *macro.List) error {
		l.Clear()
		return nil
	})
	if err != nil {
		writeMacroError(w, err, "clear items")
		return
	}
	writeItems(w, http.StatusOK, list, nil)
}
