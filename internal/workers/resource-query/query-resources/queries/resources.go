package queries

import (
	"strconv"

	"catalog-assistant/internal/models"
)

const (
	selectResources = `SELECT name, tier, description, rarity, value, ticker, colour FROM resources`
	orderResources  = ` ORDER BY tier ASC, rarity ASC LIMIT `
)

var limitClause = orderResources + strconv.Itoa(MaxRows)

func AllResources(models.QueryDescriptor) Statement {
	return Statement{
		Text: selectResources + limitClause,
		Args: []interface{}{},
	}
}

func ResourceByName(d models.QueryDescriptor) Statement {
	return Statement{
		Text: selectResources + ` WHERE LOWER(name) = LOWER($1)` + limitClause,
		Args: []interface{}{d.Name},
	}
}

func ResourcesByTier(d models.QueryDescriptor) Statement {
	return Statement{
		Text: selectResources + ` WHERE LOWER(tier) = LOWER($1)` + limitClause,
		Args: []interface{}{d.Tier},
	}
}

func ResourcesByRarityMin(d models.QueryDescriptor) Statement {
	return Statement{
		Text: selectResources + ` WHERE rarity >= $1` + limitClause,
		Args: []interface{}{*d.RarityThreshold},
	}
}

// AllResourcesPage reads one MaxRows page of the whole catalog. The name
// tiebreak keeps page boundaries stable between calls.
func AllResourcesPage(offset int) Statement {
	return Statement{
		Text: selectResources + ` ORDER BY tier ASC, rarity ASC, name ASC LIMIT ` + strconv.Itoa(MaxRows) + ` OFFSET $1`,
		Args: []interface{}{offset},
	}
}
