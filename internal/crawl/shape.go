package crawl

import "github.com/JakeFAU/thread-harvester/internal/harvest"

// keep drops media posts, which carry no usable text, except removed ones,
// which stay as placeholders.
func keep(item harvest.RawItem) bool {
	return !item.HasMedia || item.Title == harvest.RemovedTitle
}

// shape filters a page and maps the survivors to drafts in source order.
func shape(subject string, items []harvest.RawItem) []harvest.Draft {
	drafts := make([]harvest.Draft, 0, len(items))
	for _, item := range items {
		if !keep(item) {
			continue
		}
		body := ""
		if item.Body != nil {
			body = *item.Body
		}
		drafts = append(drafts, harvest.Draft{
			ID:         item.ID,
			Subject:    subject,
			Author:     item.Author,
			Title:      item.Title,
			Body:       body,
			CreatedUTC: item.CreatedUTC,
		})
	}
	return drafts
}

// oldest returns the smallest ordering key on a non-empty page.
func oldest(items []harvest.RawItem) int64 {
	low := items[0].CreatedUTC
	for _, item := range items[1:] {
		low = min(low, item.CreatedUTC)
	}
	return low
}
