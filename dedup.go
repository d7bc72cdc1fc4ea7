package main

// FilterNewMessages returns an ingestion payload for each listed provider id
// not yet stored for the account, preserving the listing order. An empty
// listing yields an empty result.
func FilterNewMessages(accountID string, listed []string, stored map[string]bool) []ingestMessagePayload {
	var payloads []ingestMessagePayload
	for _, id := range listed {
		if id == "" || stored[id] {
			continue
		}
		payloads = append(payloads, ingestMessagePayload{
			AccountID: accountID,
			GmailID:   id,
		})
	}
	return payloads
}
