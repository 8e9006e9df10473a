package models

import (
	"context"
	"fmt"

	"github.com/elstonfarm/farmbooks_backend/utils"
	"github.com/xuri/excelize/v2"
)

// SessionWorkbook renders a session as an xlsx workbook: one row per item
// with its resolution, followed by the tally block. Open sessions export the
// live projection; settled sessions export the same numbers the settlement
// stamped (both come from ComputeTallies).
func SessionWorkbook(ctx context.Context, fiscalYear int) (*excelize.File, error) {
	detail, err := GetSessionDetail(ctx, fiscalYear)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := fmt.Sprintf("FY%d", fiscalYear)
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Date", "Description", "Vendor", "Account", "Amount", "Direction", "Status", "Farm Portion", "Personal Portion", "Resolved By", "Note"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, item := range detail.Items {
		values := []interface{}{
			item.Date.Format("2006-01-02"),
			item.Description,
			item.Vendor,
			item.Account,
			item.Amount.StringFixed(2),
			string(item.Direction),
			string(item.Status),
			"",
			"",
			item.ResolvedBy,
			item.ResolvedNote,
		}
		if item.FarmPortion != nil {
			values[7] = item.FarmPortion.StringFixed(2)
		}
		if item.PersonalPortion != nil {
			values[8] = item.PersonalPortion.StringFixed(2)
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	row++
	tallies := detail.Tallies
	summaryRows := [][2]string{
		{"Farm is owed (personal on farm)", tallies.PersonalOnFarm.StringFixed(2)},
		{"Fred is owed (farm on personal)", tallies.FarmOnPersonal.StringFixed(2)},
		{"Net balance", tallies.NetBalance.StringFixed(2)},
		{"Summary", tallies.Summary},
		{"Status", string(detail.Session.Status)},
	}
	if detail.Session.Status == SessionStatusSettled {
		summaryRows = append(summaryRows,
			[2]string{"Resolution", string(utils.DereferencePtr(detail.Session.Resolution))},
			[2]string{"Settlement amount", utils.DereferencePtr(detail.Session.SettlementAmount).StringFixed(2)},
		)
		if detail.Session.PadAmount != nil {
			summaryRows = append(summaryRows, [2]string{"Pad amount", detail.Session.PadAmount.StringFixed(2)})
		}
	}
	for _, sr := range summaryRows {
		cellA, _ := excelize.CoordinatesToCellName(1, row)
		cellB, _ := excelize.CoordinatesToCellName(2, row)
		f.SetCellValue(sheet, cellA, sr[0])
		f.SetCellValue(sheet, cellB, sr[1])
		row++
	}

	return f, nil
}
