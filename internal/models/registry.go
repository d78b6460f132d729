package models

import "time"

type Avatar struct {
	OwnerID     string     `json:"ownerId"`
	AvatarID    string     `json:"avatarId"`
	Name        string     `json:"name"`
	Theory      string     `json:"theory"`
	Methodology string     `json:"methodology"`
	Principles  string     `json:"principles"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// AvatarRef is an avatar assignment held on a client record.
type AvatarRef struct {
	AvatarID   string `json:"avatarId"`
	AvatarName string `json:"avatarName"`
}

type Client struct {
	OwnerID          string      `json:"ownerId"`
	ClientID         string      `json:"clientId"`
	Name             string      `json:"name"`
	Sex              string      `json:"sex"`
	Age              string      `json:"age"`
	Avatars          []AvatarRef `json:"avatars"`
	SelectedAvatarID string      `json:"selectedAvatarId"`
	EmotionPattern   string      `json:"emotionPattern"`
	Personality      string      `json:"personality"`
	Cognition        string      `json:"cognition"`
	Goals            string      `json:"goals"`
	Principles       string      `json:"principles"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Avatar returns the assignment for avatarID, if the client has one.
func (c Client) Avatar(avatarID string) (AvatarRef, bool) {
	for _, ref := range c.Avatars {
		if ref.AvatarID == avatarID {
			return ref, true
		}
	}
	return AvatarRef{}, false
}

// AvatarPatch lists the avatar fields a partial update may touch. Nil fields are left alone.
type AvatarPatch struct {
	Name        *string `json:"name"`
	Theory      *string `json:"theory"`
	Methodology *string `json:"methodology"`
	Principles  *string `json:"principles"`
}

// Fields returns the set attributes keyed by their stored names.
func (p AvatarPatch) Fields() map[string]any {
	fields := map[string]any{}
	setString(fields, "name", p.Name)
	setString(fields, "theory", p.Theory)
	setString(fields, "methodology", p.Methodology)
	setString(fields, "principles", p.Principles)
	return fields
}

type ClientPatch struct {
	Name             *string      `json:"name"`
	Sex              *string      `json:"sex"`
	Age              *string      `json:"age"`
	Avatars          *[]AvatarRef `json:"avatars"`
	SelectedAvatarID *string      `json:"selectedAvatarId"`
	EmotionPattern   *string      `json:"emotionPattern"`
	Personality      *string      `json:"personality"`
	Cognition        *string      `json:"cognition"`
	Goals            *string      `json:"goals"`
	Principles       *string      `json:"principles"`
}

func (p ClientPatch) Fields() map[string]any {
	fields := map[string]any{}
	setString(fields, "name", p.Name)
	setString(fields, "sex", p.Sex)
	setString(fields, "age", p.Age)
	if p.Avatars != nil {
		avatars := *p.Avatars
		if avatars == nil {
			avatars = []AvatarRef{}
		}
		fields["avatars"] = avatars
	}
	setString(fields, "selectedAvatarId", p.SelectedAvatarID)
	setString(fields, "emotionPattern", p.EmotionPattern)
	setString(fields, "personality", p.Personality)
	setString(fields, "cognition", p.Cognition)
	setString(fields, "goals", p.Goals)
	setString(fields, "principles", p.Principles)
	return fields
}

func setString(fields map[string]any, name string, value *string) {
	if value != nil {
		fields[name] = *value
	}
}
