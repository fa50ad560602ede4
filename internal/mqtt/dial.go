package mqtt

// Dial creates a client and a store rooted at root, resubscribes the store
// after every (re)connect, and makes one connection attempt. Paho keeps
// retrying in the background when the broker is down.
func Dial(o Options, root string) (*Store, *Client) {
	var st *Store
	client := NewClient(o, func() {
		if st != nil {
			st.Resubscribe()
		}
	})
	st = NewStore(client, root)
	client.StartWithRetry()
	return st, client
}
