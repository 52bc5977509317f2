package reads

import (
	"go.uber.org/zap"

	"github.com/radieske/story-bet-platform/internal/client/live"
	"github.com/radieske/story-bet-platform/internal/client/rcache"
	"github.com/radieske/story-bet-platform/internal/shared/logger"
	"github.com/radieske/story-bet-platform/pkg/contracts/events"
)

// invalidations mapeia cada evento ao vivo para os prefixos que ele torna obsoletos
var invalidations = map[string][]rcache.Key{
	events.BettingUpdate:      {PrefixBetting},
	events.BettingClosingSoon: {PrefixBetting},
	events.ChapterUpdate:      {PrefixChapters, PrefixStories},
	events.ChapterNew:         {PrefixChapters, PrefixStories, PrefixBetting},
	events.PoolResolvedEvent:  {PrefixBetting, PrefixUser, PrefixLeaderboard},
	events.EntityNew:          {PrefixCompendium},
	events.NFTMinted:          {PrefixNFTs, PrefixCompendium},
}

// BridgeInvalidation liga os eventos ao vivo às invalidações do cache. Ao
// reconectar, as áreas live são invalidadas porque eventos podem ter sido perdidos.
func BridgeInvalidation(conn *live.Conn, cache *rcache.Cache, log *zap.Logger) live.Subscription {
	log = logger.OrNop(log)
	subs := make(bridge, 0, len(invalidations)+1)
	for name, prefixes := range invalidations {
		subs = append(subs, conn.On(name, func(ev live.Event) {
			n := 0
			for _, p := range prefixes {
				n += cache.Invalidate(p)
			}
			log.Debug("cache invalidated by live event", zap.String("event", ev.Name), zap.Int("entries", n))
		}))
	}

	wasConnected := false
	subs = append(subs, conn.WatchConnectivity(func(connected bool) {
		if connected && wasConnected {
			cache.Invalidate(PrefixBetting)
			cache.Invalidate(PrefixChapters)
		}
		if connected {
			wasConnected = true
		}
	}))
	return subs
}

type bridge []live.Subscription

func (b bridge) Close() {
	for _, s := range b {
		s.Close()
	}
}
