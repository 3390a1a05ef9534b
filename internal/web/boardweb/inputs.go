package boardweb

import (
	"net/url"
	"strings"
)

type BoardQuery struct {
	Direction string // "ALL", "UPTOWN" or "DOWNTOWN"
}

func ParseBoardQuery(values url.Values) BoardQuery {
	direction := strings.ToUpper(strings.TrimSpace(values.Get("direction")))
	switch direction {
	case "UPTOWN", "DOWNTOWN":
	default:
		direction = "ALL"
	}
	return BoardQuery{Direction: direction}
}
