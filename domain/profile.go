package domain

// Profile is the display summary of a user, fetched once per session and
// cached by the enrichment layer. The company name is resolved separately
// because it lives in its own collection.
type Profile struct {
	ID          string `json:"id" firestore:"-"`
	DisplayName string `json:"displayName" firestore:"displayName"`
	ImageURL    string `json:"imageUrl" firestore:"imageUrl"`
	Role        string `json:"role" firestore:"role"`
}
