package reconciliation

// PageProbeOrder returns the list pages to fetch for one financial year.
// Page 1 always comes first. With a known page count the remaining slots go
// to the tail, newest pages first, and any slots left are filled from the
// front. With an unknown count pages are probed linearly from 2.
func PageProbeOrder(totalPages, maxPages int) []int {
	if maxPages < 1 {
		return nil
	}

	order := []int{1}
	if totalPages <= 0 {
		for page := 2; page <= maxPages; page++ {
			order = append(order, page)
		}
		return order
	}

	limit := min(maxPages, totalPages)
	probed := map[int]bool{1: true}
	for page := totalPages; page > 1 && len(order) < limit; page-- {
		order = append(order, page)
		probed[page] = true
	}
	for page := 2; page <= totalPages && len(order) < limit; page++ {
		if !probed[page] {
			order = append(order, page)
		}
	}
	return order
}
