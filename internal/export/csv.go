package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/FRC5892/HeroHours/internal/attendance"
)

// csvHeader matches the columns the sheet pull has always consumed.
var csvHeader = []string{
	"User_ID", "First_Name", "Last_Name", "Total_Hours", "Total_Seconds",
	"Last_In", "Last_Out", "Is_Active",
}

// WriteCSV renders the roster in the sheet pull format.
func WriteCSV(w io.Writer, members []attendance.Member) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, m := range members {
		record := []string{
			strconv.FormatInt(m.ID, 10),
			m.FirstName,
			m.LastName,
			m.TotalHours(),
			strconv.FormatFloat(m.TotalSeconds, 'f', -1, 64),
			formatTime(m.LastIn),
			formatTime(m.LastOut),
			strconv.FormatBool(m.Active),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
