package pdf

import (
	"context"
	"fmt"
	"strconv"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

type MarotoRenderer struct{}

func New() Renderer {
	return &MarotoRenderer{}
}

func (r *MarotoRenderer) RenderStatement(ctx context.Context, data StatementData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Credit statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)
	m.AddRow(16,
		col.New(6).Add(
			text.New("User: "+strconv.FormatInt(data.UserID, 10), props.Text{Top: 0}),
			text.New("Generated: "+data.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), props.Text{Top: 5}),
		),
		text.NewCol(6, fmt.Sprintf("Balance: %d credits", data.Balance), props.Text{
			Size:  14,
			Style: fontstyle.Bold,
			Align: align.Right,
		}),
	)

	header := props.Text{Style: fontstyle.Bold, Size: 9}
	headerRight := props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	m.AddRow(8,
		text.NewCol(3, "Date", header),
		text.NewCol(2, "Type", header),
		text.NewCol(3, "Reason", header),
		text.NewCol(2, "Amount", headerRight),
		text.NewCol(2, "Balance", headerRight),
	)
	m.AddRow(2, line.NewCol(12))

	cell := props.Text{Size: 8}
	cellRight := props.Text{Size: 8, Align: align.Right}
	for _, l := range data.Lines {
		reason := l.Reason
		if l.JobID != "" {
			reason = fmt.Sprintf("%s (job %s)", reason, l.JobID)
		}
		m.AddRow(7,
			text.NewCol(3, l.Date.UTC().Format("2006-01-02 15:04"), cell),
			text.NewCol(2, l.Type, cell),
			text.NewCol(3, reason, cell),
			text.NewCol(2, formatAmount(l.Amount), cellRight),
			text.NewCol(2, strconv.FormatInt(l.BalanceAfter, 10), cellRight),
		)
	}
	if len(data.Lines) == 0 {
		m.AddRow(8, text.NewCol(12, "No credit movements.", props.Text{Size: 9, Style: fontstyle.Italic}))
	}
	if data.Truncated {
		m.AddRow(8, text.NewCol(12, "Older movements are omitted.", props.Text{Size: 8, Style: fontstyle.Italic}))
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}

func formatAmount(amount int64) string {
	if amount > 0 {
		return "+" + strconv.FormatInt(amount, 10)
	}
	return strconv.FormatInt(amount, 10)
}
