package brightwheel

import (
	"encoding/json"
	"time"
)

// Action type discriminators emitted by the activity feed. The feed
// carries more types than these; anything unlisted is ignored.
const (
	ActionTypeCheckin     = "ac_checkin"
	ActionTypeNap         = "ac_nap"
	ActionTypeFood        = "ac_food"
	ActionTypePotty       = "ac_potty"
	ActionTypeObservation = "ac_observation"
)

// State codes used by two-sided events. Check-ins use "1" for in and
// "2" for out; naps use "1" for fall-asleep and "0" for wake-up.
const (
	StateCheckin   = "1"
	StateNapAsleep = "1"
	StateNapWakeUp = "0"
)

// Student is one child associated with a guardian account.
type Student struct {
	ObjectID  string `json:"object_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Media references an externally hosted still image.
type Media struct {
	ImageURL string `json:"image_url"`
}

// VideoInfo references an externally hosted video.
type VideoInfo struct {
	DownloadableURL string `json:"downloadable_url"`
}

// DropoffReport is attached to check-in activities. All timestamps
// are optional; the school often leaves them blank.
type DropoffReport struct {
	WokeUp     *time.Time `json:"woke_up"`
	LastAte    *time.Time `json:"last_ate"`
	LastPotty  *time.Time `json:"last_potty"`
	PickupTime *time.Time `json:"pickup_time"`
}

// MenuItemTag is one named menu item on a food activity.
type MenuItemTag struct {
	ObjectID string `json:"object_id"`
	Name     string `json:"name"`
	TagType  string `json:"tag_type"`
}

// FoodDetails is the details payload shape for ac_food activities.
type FoodDetails struct {
	Amount       float64 `json:"amount"`
	FoodType     string  `json:"food_type"` // "bottle" or "food"
	AmountType   string  `json:"amount_type"`
	FoodMealType int     `json:"food_meal_type"`
}

// PottyDetails is the details payload shape for ac_potty activities.
type PottyDetails struct {
	Potty       string   `json:"potty"`
	PottyType   string   `json:"potty_type"`
	PottyExtras []string `json:"potty_extras"`
}

// Activity is one event from the feed. The details blob is kept raw
// and decoded on demand because its shape depends on ActionType.
// Raw holds the verbatim server JSON for the append-only raw log and
// is excluded from re-marshaling.
type Activity struct {
	ObjectID      string          `json:"object_id"`
	ActionType    string          `json:"action_type"`
	EventDate     time.Time       `json:"event_date"`
	CreatedAt     time.Time       `json:"created_at"`
	Note          string          `json:"note"`
	State         string          `json:"state"`
	Media         *Media          `json:"media"`
	VideoInfo     *VideoInfo      `json:"video_info"`
	DetailsBlob   json.RawMessage `json:"details_blob"`
	DropoffReport *DropoffReport  `json:"dropoff_report"`
	MenuItemTags  []MenuItemTag   `json:"menu_item_tags"`

	Raw json.RawMessage `json:"-"`
}

// FoodDetails decodes the details blob as a food payload.
func (a *Activity) FoodDetails() (*FoodDetails, error) {
	var d FoodDetails
	if err := json.Unmarshal(a.DetailsBlob, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// PottyDetails decodes the details blob as a potty payload.
func (a *Activity) PottyDetails() (*PottyDetails, error) {
	var d PottyDetails
	if err := json.Unmarshal(a.DetailsBlob, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// MenuItemNames returns the menu item tag names in feed order.
func (a *Activity) MenuItemNames() []string {
	names := make([]string, 0, len(a.MenuItemTags))
	for _, tag := range a.MenuItemTags {
		names = append(names, tag.Name)
	}
	return names
}
