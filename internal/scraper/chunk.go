package scraper

import "time"

type DateRange struct {
	From time.Time
	To   time.Time
}

func SplitDateRange(from, to time.Time, chunkDays int) []DateRange {
	if from.After(to) || chunkDays <= 0 {
		return nil
	}

	var chunks []DateRange
	for cur := from; !cur.After(to); cur = cur.AddDate(0, 0, chunkDays) {
		end := cur.AddDate(0, 0, chunkDays-1)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, DateRange{From: cur, To: end})
	}
	return chunks
}

// Page is a half-open [Start, End) row range.
type Page struct {
	Start, End int
}

// SplitPages covers rows [from, total) with pages of at most size rows.
func SplitPages(from, total, size int) []Page {
	if size <= 0 || from >= total {
		return nil
	}

	var pages []Page
	for start := from; start < total; start += size {
		pages = append(pages, Page{Start: start, End: min(start+size, total)})
	}
	return pages
}
