package scene

import "strings"

// Action is a logical keyboard command.
type Action string

const (
	ActionNone      Action = ""
	ActionCopy      Action = "copy"
	ActionCut       Action = "cut"
	ActionPaste     Action = "paste"
	ActionDuplicate Action = "duplicate"
	ActionDelete    Action = "delete"
	ActionSelectAll Action = "select-all"
)

// PlatformMac selects Cmd as the shortcut modifier; every other platform
// uses Ctrl.
const PlatformMac = "mac"

// KeyEvent is a key press as reported by the client.
type KeyEvent struct {
	Key       string    `json:"key"`
	Modifiers Modifiers `json:"modifiers"`
	Platform  string    `json:"platform,omitempty"`
	// TextInputFocused is set while a text field has focus; shortcuts are
	// suppressed then.
	TextInputFocused bool `json:"textInputFocused,omitempty"`
}

// ShortcutModifier is the platform's primary shortcut modifier.
func ShortcutModifier(platform string) Modifiers {
	if strings.EqualFold(platform, PlatformMac) || strings.EqualFold(platform, "darwin") {
		return ModMeta
	}
	return ModCtrl
}

// ActionFor maps a key event to its action.
func ActionFor(ev KeyEvent) Action {
	if ev.TextInputFocused {
		return ActionNone
	}
	switch ev.Key {
	case "Delete", "Backspace":
		return ActionDelete
	}
	if ev.Modifiers&ShortcutModifier(ev.Platform) == 0 {
		return ActionNone
	}
	switch strings.ToLower(ev.Key) {
	case "c":
		return ActionCopy
	case "x":
		return ActionCut
	case "v":
		return ActionPaste
	case "d":
		return ActionDuplicate
	case "a":
		return ActionSelectAll
	}
	return ActionNone
}

// KeyDown updates the modifier mode and performs the shortcut bound to ev,
// if any. It returns the action and whether it changed anything.
func (e *Editor) KeyDown(ev KeyEvent) (Action, bool) {
	e.selector.SetModifiers(ev.Modifiers)
	a := ActionFor(ev)
	return a, e.Perform(a)
}

// KeyUp records the modifiers still held after a key release.
func (e *Editor) KeyUp(ev KeyEvent) {
	e.selector.SetModifiers(ev.Modifiers)
}

// Perform runs a keyboard action against the current selection.
func (e *Editor) Perform(a Action) bool {
	switch a {
	case ActionCopy:
		return e.Copy()
	case ActionCut:
		return e.Cut()
	case ActionPaste:
		return e.Paste() != ""
	case ActionDuplicate:
		if e.sel.Primary == "" {
			return false
		}
		return e.Duplicate(e.sel.Primary) != ""
	case ActionDelete:
		return e.DeleteSelection()
	case ActionSelectAll:
		return e.SelectAll()
	}
	return false
}
