package model

const (
	CategorySafeCare        = "Safe and Effective Care"
	CategoryHealthPromotion = "Health Promotion"
	CategoryPsychosocial    = "Psychosocial"
	CategoryPhysiological   = "Physiological"
)

// CategoryShare 单个分类在生成题目中的目标占比（百分比）
type CategoryShare struct {
	Category string
	Percent  int
}

// CategoryDistribution 题目分类目标分布，合计 100
var CategoryDistribution = []CategoryShare{
	{Category: CategorySafeCare, Percent: 25},
	{Category: CategoryHealthPromotion, Percent: 15},
	{Category: CategoryPsychosocial, Percent: 10},
	{Category: CategoryPhysiological, Percent: 50},
}

func IsValidCategory(category string) bool {
	for _, c := range CategoryDistribution {
		if c.Category == category {
			return true
		}
	}
	return false
}

// DistributeCategories 按目标分布把 n 道题分配到各分类，余数归入占比最大的分类
func DistributeCategories(n int) map[string]int {
	out := make(map[string]int, len(CategoryDistribution))
	if n <= 0 {
		return out
	}

	assigned := 0
	largest := CategoryDistribution[0]
	for _, c := range CategoryDistribution {
		count := n * c.Percent / 100
		out[c.Category] = count
		assigned += count
		if c.Percent > largest.Percent {
			largest = c
		}
	}
	out[largest.Category] += n - assigned
	return out
}
