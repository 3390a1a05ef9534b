package boardweb

type BoardPageVM struct {
	StationLabel string
	Directions   []string
	Selected     string
	PollSeconds  int
}

type BoardTableVM struct {
	Selected  string
	UpdatedAt string
	Age       string
	Error     string
	Rows      []ArrivalRowVM
}

type ArrivalRowVM struct {
	Route     string
	Direction string
	Countdown string
}
