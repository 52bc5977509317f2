package reads

import (
	"strconv"
	"strings"

	"github.com/radieske/story-bet-platform/internal/client/rcache"
)

// Prefixos de chave por área. Invalidar um prefixo invalida toda a área.
var (
	PrefixStories     = rcache.NewKey(rcache.Resource("stories"))
	PrefixChapters    = rcache.NewKey(rcache.Resource("chapters"))
	PrefixBetting     = rcache.NewKey(rcache.Resource("betting"))
	PrefixCompendium  = rcache.NewKey(rcache.Resource("compendium"))
	PrefixLeaderboard = rcache.NewKey(rcache.Resource("leaderboard"))
	PrefixNFTs        = rcache.NewKey(rcache.Resource("nfts"))
	PrefixUser        = rcache.NewKey(rcache.Resource("user"))
)

func StoriesKey(f StoryFilter) rcache.Key {
	return PrefixStories.Append(
		rcache.Resource("list"),
		rcache.Param("status", f.Status),
		rcache.Param("genre", f.Genre),
		rcache.Param("limit", strconv.Itoa(f.Limit)),
		rcache.Param("offset", strconv.Itoa(f.Offset)),
	)
}

func StoryKey(id string) rcache.Key { return PrefixStories.Append(rcache.ID(id)) }

func StoryChaptersKey(storyID string) rcache.Key {
	return PrefixChapters.Append(rcache.Resource("story"), rcache.ID(storyID))
}

func ChapterKey(id string) rcache.Key { return PrefixChapters.Append(rcache.ID(id)) }

func OutcomesKey(chapterID string) rcache.Key {
	return PrefixBetting.Append(rcache.Resource("outcomes"), rcache.ID(chapterID))
}

func ActivePoolsKey() rcache.Key {
	return PrefixBetting.Append(rcache.Resource("pools"), rcache.Resource("active"))
}

func PoolKey(id string) rcache.Key {
	return PrefixBetting.Append(rcache.Resource("pools"), rcache.ID(id))
}

func CompendiumKey(category string) rcache.Key {
	return PrefixCompendium.Append(rcache.Resource("list"), rcache.Param("category", category))
}

func EntityKey(id string) rcache.Key { return PrefixCompendium.Append(rcache.ID(id)) }

func LeaderboardKey(limit int) rcache.Key {
	return PrefixLeaderboard.Append(rcache.Param("limit", strconv.Itoa(limit)))
}

func NFTsKey(owner string) rcache.Key {
	return PrefixNFTs.Append(rcache.Param("owner", strings.ToLower(owner)))
}

// UserBetsKey e UserStatsKey são os prefixos invalidados após uma aposta do usuário
func UserBetsKey(address string) rcache.Key {
	return PrefixUser.Append(rcache.Resource("bets"), rcache.ID(strings.ToLower(address)))
}

func UserStatsKey(address string) rcache.Key {
	return PrefixUser.Append(rcache.Resource("stats"), rcache.ID(strings.ToLower(address)))
}
