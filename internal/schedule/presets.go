package schedule

// Preset is a selectable warming schedule.
type Preset struct {
	Expr  string `json:"expr"`
	Label string `json:"label"`
}

// Presets are the schedules offered to operators. Any standard five-field
// cron expression is accepted; these are the common choices.
var Presets = []Preset{
	{Expr: "0 0 * * *", Label: "12:00 AM"},
	{Expr: "0 1 * * *", Label: "1:00 AM"},
	{Expr: "0 2 * * *", Label: "2:00 AM"},
	{Expr: "0 3 * * *", Label: "3:00 AM"},
	{Expr: "0 4 * * *", Label: "4:00 AM"},
	{Expr: "0 5 * * *", Label: "5:00 AM"},
	{Expr: "0 6 * * *", Label: "6:00 AM"},
	{Expr: "0 * * * *", Label: "Every Hour"},
	{Expr: "*/30 * * * *", Label: "Every 30 Minutes"},
	{Expr: "*/15 * * * *", Label: "Every 15 Minutes"},
	{Expr: "*/5 * * * *", Label: "Every 5 Minutes"},
}

// DefaultExpr is used when no schedule is configured.
const DefaultExpr = "0 2 * * *"
