package hub

import (
	"github.com/orchestra-mcp/chat/src/types"
)

// IsConnected reports whether the user has at least one open connection.
func (h *Hub) IsConnected(userID string) bool {
	return h.registry.IsOnline(userID)
}

// ConnectedUserIDs returns the identities of all online users.
func (h *Hub) ConnectedUserIDs() []string {
	return h.registry.OnlineUserIDs()
}

// ClientInfos returns info for each open connection of a user.
func (h *Hub) ClientInfos(userID string) []types.ClientInfo {
	clients := h.registry.Connections(userID)
	infos := make([]types.ClientInfo, 0, len(clients))
	for _, c := range clients {
		infos = append(infos, c.Info())
	}
	return infos
}

// Stats returns the number of open connections and online users.
func (h *Hub) Stats() types.Stats {
	return h.registry.Stats()
}
