package dto

// SwipeRequest records the viewer's decision about TargetID.
type SwipeRequest struct {
	TargetID string `json:"targetId" validate:"required,max=128"`
	Action   string `json:"action" validate:"required,oneof=like superlike reject"`
}

// SwipeResult reports whether the swipe created a new mutual match.
type SwipeResult struct {
	IsMatch     bool            `json:"isMatch"`
	MatchedUser *ProfileSummary `json:"matchedUser,omitempty"`
}

// ResetSwipesRequest names the interaction list to clear.
type ResetSwipesRequest struct {
	Type string `json:"type" validate:"required,oneof=liked superliked rejected matches"`
}

// CandidateQuery limits the size of a swipe batch.
type CandidateQuery struct {
	Limit int `query:"limit" validate:"omitempty,min=1,max=50"`
}

// CandidateBatch is a page of swipe candidates.
type CandidateBatch struct {
	Profiles []ProfileSummary `json:"profiles"`
	CacheHit bool             `json:"-"`
}
