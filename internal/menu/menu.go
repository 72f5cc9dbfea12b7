// Package menu walks a declarative menu tree and contributes submenus,
// commands, menu actions and keybindings to a host-supplied registry.
package menu

import (
	"fmt"
	"sort"

	"github.com/atu-ide/bizbridge/internal/models"
)

// MainMenuBar is the root path every item location is relative to
var MainMenuBar = []string{"menubar"}

// Item is one node of the menu tree
type Item struct {
	ID         string              `yaml:"id" json:"id"`
	Label      string              `yaml:"label,omitempty" json:"label,omitempty"`
	Icon       string              `yaml:"icon,omitempty" json:"icon,omitempty"`
	Location   []string            `yaml:"location" json:"location"` // path below the menu bar
	Order      string              `yaml:"order,omitempty" json:"order,omitempty"`
	Enabled    *bool               `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Keybinding string              `yaml:"keybinding,omitempty" json:"keybinding,omitempty"`
	Request    *models.RequestHead `yaml:"request,omitempty" json:"request,omitempty"`
	Children   []Item              `yaml:"children,omitempty" json:"children,omitempty"`
}

// IsEnabled defaults to true when unset
func (it *Item) IsEnabled() bool {
	return it.Enabled == nil || *it.Enabled
}

// IsSubmenu reports whether the item opens a submenu instead of running a command
func (it *Item) IsSubmenu() bool {
	return len(it.Children) > 0 && it.Label != ""
}

// Command is what a leaf item contributes to the command registry
type Command struct {
	ID        string
	Label     string
	IconClass string
	Enabled   bool
	Request   *models.RequestHead
}

// Action places a command in a menu
type Action struct {
	CommandID string
	Label     string
	Order     string
}

// Keybinding binds a key chord to a command
type Keybinding struct {
	CommandID  string
	Keybinding string
}

// Registry is implemented by the host shell
type Registry interface {
	RegisterSubmenu(path []string, label string, order string)
	RegisterMenuAction(path []string, action Action)
	RegisterCommand(cmd Command)
	RegisterKeybinding(kb Keybinding)
}

// Contribute registers items and their descendants with reg
func Contribute(reg Registry, items []Item) {
	for i := range items {
		contribute(reg, &items[i])
	}
}

func contribute(reg Registry, it *Item) {
	path := append(append([]string{}, MainMenuBar...), it.Location...)

	if it.IsSubmenu() {
		reg.RegisterSubmenu(path, it.Label, it.Order)
		for i := range it.Children {
			contribute(reg, &it.Children[i])
		}
		return
	}

	// an unlabeled item with children is a plain group: no node of its own,
	// its keybinding and request are ignored
	if len(it.Children) > 0 {
		for i := range it.Children {
			contribute(reg, &it.Children[i])
		}
		return
	}

	reg.RegisterCommand(Command{
		ID:        it.ID,
		Label:     it.Label,
		IconClass: codicon(it.Icon),
		Enabled:   it.IsEnabled(),
		Request:   it.Request,
	})
	reg.RegisterMenuAction(path, Action{CommandID: it.ID, Label: it.Label, Order: it.Order})
	if it.Keybinding != "" {
		reg.RegisterKeybinding(Keybinding{CommandID: it.ID, Keybinding: it.Keybinding})
	}
}

func codicon(name string) string {
	if name == "" {
		return ""
	}
	return "codicon codicon-" + name
}

// Find returns the item with id anywhere in the tree
func Find(items []Item, id string) (*Item, bool) {
	for i := range items {
		if items[i].ID == id {
			return &items[i], true
		}
		if found, ok := Find(items[i].Children, id); ok {
			return found, true
		}
	}
	return nil, false
}

// Validate checks ids are present and unique and request heads are complete
func Validate(items []Item) error {
	seen := make(map[string]bool)
	return validate(items, seen)
}

func validate(items []Item, seen map[string]bool) error {
	for i, it := range items {
		if it.ID == "" {
			return fmt.Errorf("menu item %d: missing id", i)
		}
		if seen[it.ID] {
			return fmt.Errorf("duplicate menu id: %s", it.ID)
		}
		seen[it.ID] = true

		if it.Request != nil {
			if err := it.Request.Validate(); err != nil {
				return fmt.Errorf("menu item %s: %w", it.ID, err)
			}
		}
		if len(it.Children) > 0 && it.Request != nil {
			return fmt.Errorf("menu item %s: a submenu cannot carry a request", it.ID)
		}
		if err := validate(it.Children, seen); err != nil {
			return err
		}
	}
	return nil
}

// Flatten returns every leaf command in order-sorted, depth-first order
func Flatten(items []Item) []Item {
	var out []Item
	sorted := append([]Item{}, items...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	for _, it := range sorted {
		if len(it.Children) > 0 {
			out = append(out, Flatten(it.Children)...)
			continue
		}
		out = append(out, it)
	}
	return out
}
