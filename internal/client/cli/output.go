package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/htgen/internal/client/models"
)

func writeHistory(w io.Writer, entries []models.HistoryEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tCREATED\tLANG\tTOPIC\tHASHTAGS")
	for _, e := range entries {
		topic := e.TopicValue()
		if topic == "" {
			topic = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			e.Timestamp, formatTime(e.Timestamp), e.Language, topic, strings.Join(e.Hashtags, " "))
	}
	return tw.Flush()
}
