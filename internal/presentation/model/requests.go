package model

type CreatePresentationRequest struct {
	Title  string  `json:"title"`
	TeamID *string `json:"team_id"`
}

type RenameRequest struct {
	Title string `json:"title"`
}

type InviteRequest struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// UpdateCollaboratorsRequest maps userID to the new role; null removes the
// collaborator.
type UpdateCollaboratorsRequest struct {
	Changes map[string]*Role `json:"changes"`
}

type TransferOwnershipRequest struct {
	UserID string `json:"user_id"`
}

// SettingsUpdate carries only the fields the caller wants to change.
type SettingsUpdate struct {
	IsPublic          *bool   `json:"is_public"`
	PasswordProtected *bool   `json:"password_protected"`
	Password          *string `json:"password"`
	CommentsAllowed   *bool   `json:"comments_allowed"`
}

type VerifyAccessRequest struct {
	Password string `json:"password"`
}

type VerifyAccessResponse struct {
	Granted bool `json:"granted"`
}

type SlideRequest struct {
	Background   Background `json:"background"`
	SpeakerNotes string     `json:"speaker_notes"`
}

type SpeakerNotesRequest struct {
	SpeakerNotes string `json:"speaker_notes"`
}

type ElementRequest struct {
	Type     ElementType       `json:"type"`
	Content  ElementContent    `json:"content"`
	Position Position          `json:"position"`
	Size     Size              `json:"size"`
	Style    map[string]string `json:"style"`
	ZIndex   *int              `json:"z_index"`
}

// ElementPatch updates geometry, content or style; nil fields are left as is.
// Content must keep the element's type.
type ElementPatch struct {
	Content  *ElementContent   `json:"content"`
	Position *Position         `json:"position"`
	Size     *Size             `json:"size"`
	Style    map[string]string `json:"style"`
	ZIndex   *int              `json:"z_index"`
}

type LockResponse struct {
	Acquired bool `json:"acquired"`
}

type ReleaseExpiredResponse struct {
	Released int `json:"released"`
}

type CommentRequest struct {
	AuthorName string `json:"author_name"`
	Text       string `json:"text"`
}

type CollaboratorChange struct {
	UserID  string `json:"user_id"`
	OldRole Role   `json:"old_role,omitempty"`
	NewRole Role   `json:"new_role,omitempty"`
	Removed bool   `json:"removed"`
}
