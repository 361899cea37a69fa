package bot

import (
	"strings"
	"sync"
)

// DialogState represents where a user is in a multi-step form.
type DialogState int

const (
	NoDialog DialogState = iota

	// Admin event creation form.
	EventDate
	EventTime
	EventProcedure
	EventPhotoNeeded
	EventComment
	EventConfirm

	// Candidate application form.
	ApplyName
	ApplyPhone
	ApplyPhotos
	ApplyConsent
	ApplyConfirm
)

// UserDialogState stores one user's form progress.
type UserDialogState struct {
	State   DialogState
	EventID int               // target event for application forms
	Data    map[string]string // collected form fields
	Photos  []string          // collected photo file ids
}

// DialogManager tracks form state per user.
type DialogManager struct {
	userStates map[int64]*UserDialogState
	mu         sync.RWMutex
}

// NewDialogManager creates an empty manager.
func NewDialogManager() *DialogManager {
	return &DialogManager{userStates: make(map[int64]*UserDialogState)}
}

func (dm *DialogManager) state(userID int64) *UserDialogState {
	if st, ok := dm.userStates[userID]; ok {
		return st
	}
	st := &UserDialogState{Data: make(map[string]string)}
	dm.userStates[userID] = st
	return st
}

// SetState moves the user to a new dialog state.
func (dm *DialogManager) SetState(userID int64, state DialogState, eventID int) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	st := dm.state(userID)
	st.State = state
	if eventID != 0 {
		st.EventID = eventID
	}
}

// GetState returns the user's dialog state and target event.
func (dm *DialogManager) GetState(userID int64) (DialogState, int) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if st, ok := dm.userStates[userID]; ok {
		return st.State, st.EventID
	}
	return NoDialog, 0
}

// SetData stores a form field.
func (dm *DialogManager) SetData(userID int64, key, value string) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.state(userID).Data[key] = value
}

// GetData reads a form field.
func (dm *DialogManager) GetData(userID int64, key string) string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if st, ok := dm.userStates[userID]; ok {
		return st.Data[key]
	}
	return ""
}

// AddPhoto appends a photo file id and returns the new count.
func (dm *DialogManager) AddPhoto(userID int64, fileID string) int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	st := dm.state(userID)
	st.Photos = append(st.Photos, fileID)
	return len(st.Photos)
}

// Photos returns the collected photo file ids.
func (dm *DialogManager) Photos(userID int64) []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if st, ok := dm.userStates[userID]; ok {
		photos := make([]string, len(st.Photos))
		copy(photos, st.Photos)
		return photos
	}
	return nil
}

// Clear drops the user's form state.
func (dm *DialogManager) Clear(userID int64) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	delete(dm.userStates, userID)
}

// ValidateName requires at least a surname and a name.
func ValidateName(name string) bool {
	return len(strings.Fields(strings.TrimSpace(name))) >= 2
}
