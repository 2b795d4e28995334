package domain

// Stage button types.
const (
	ButtonTypeCallback = "callback"
	ButtonTypeStage    = "stage"
	ButtonTypeURL      = "url"
)

// Stage is an admin-authored screen: bilingual text plus a button grid.
// Stages are created and edited through the admin surface and read-only here.
type Stage struct {
	Key                string `db:"key"`
	TextFa             string `db:"text_fa"`
	TextEn             string `db:"text_en"`
	Enabled            bool   `db:"enabled"`
	RequiredPermission string `db:"required_permission"`
	ParentKey          string `db:"parent_key"`
	ReplyKeyboard      bool   `db:"reply_keyboard"`
}

// StageButton is one cell in a stage's button grid.
type StageButton struct {
	ID                 int64  `db:"id"`
	StageKey           string `db:"stage_key"`
	Row                int    `db:"row"`
	Column             int    `db:"col"`
	TextFa             string `db:"text_fa"`
	TextEn             string `db:"text_en"`
	Enabled            bool   `db:"enabled"`
	RequiredPermission string `db:"required_permission"`
	ButtonType         string `db:"button_type"`
	CallbackData       string `db:"callback_data"`
	TargetStageKey     string `db:"target_stage_key"`
	URL                string `db:"url"`
}
