package topics

const (
	// Apostas
	BetPlaced = "bet_placed"

	// Liquidação (publicado pelo sistema de liquidação externo)
	PoolResolved = "pool_resolved"

	// Ciclo de vida de capítulos, entidades, NFTs e anúncios
	StoryEvents = "story_events"

	// DLQs
	BetPlacedDLQ = "bet_placed_dlq"

	// Canal Redis Pub/Sub usado pelo live-gateway
	LiveBroadcast = "live_events_broadcast"
)
