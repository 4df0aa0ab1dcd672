package normalize

import (
	"sort"

	"github.com/web3-frozen/onchain-ingest/internal/raw"
)

// DustThreshold is the USD value an asset position must exceed to be
// reported as an allocation row.
const DustThreshold = 1.0

// Asset is a reserve asset category and the per-chain field carrying its
// USD value.
type Asset struct {
	Name  string
	Field string
}

// ReserveAssets is the fixed set of categories, in report order.
var ReserveAssets = []Asset{
	{"TBILL", "totalTbillAmountInUsd"},
	{"USDC", "usdcAmount"},
	{"BUIDL", "buidlAmount"},
	{"VBILL", "vbillAmount"},
	{"USYC", "usycAmountInUsd"},
	{"BENJI", "benjiAmount"},
}

type AssetAllocation struct {
	Chain      string  `json:"chain"`
	Asset      string  `json:"asset"`
	USDValue   float64 `json:"usdValue"`
	Percentage float64 `json:"percentage"`
}

type CirculatingSupply struct {
	Chain      string  `json:"chain"`
	USDOAmount float64 `json:"usdoAmount"`
	Percentage float64 `json:"percentage"`
}

// SettlementRatios are the percentages of reserve value realizable in cash
// within one, two and three settlement days.
type SettlementRatios struct {
	TPlus1 float64 `json:"tPlus1"`
	TPlus2 float64 `json:"tPlus2"`
	TPlus3 float64 `json:"tPlus3"`
}

// CollateralAllocation is the per-date reserve snapshot document; Date is
// its ingestion key.
type CollateralAllocation struct {
	Date                       string              `json:"date"`
	TotalUSDOAmount            float64             `json:"totalUsdoAmount"`
	TotalReserveUSD            float64             `json:"totalReserveUsd"`
	CollateralRatio            float64             `json:"collateralRatio"`
	Allocations                []AssetAllocation   `json:"allocations"`
	CirculatingSupplyByNetwork []CirculatingSupply `json:"circulatingSupplyByNetwork"`
	SettlementRatios           SettlementRatios    `json:"settlementRatios"`

	// TotalTBillUSD is reported upstream but not stored.
	TotalTBillUSD float64 `json:"-"`
}

const collateralMetric = "collateral_allocation"

// CollateralAllocationRecord builds the snapshot document from the reserve
// composition doc and its per-chain rows.
func CollateralAllocationRecord(doc raw.Row, chains []raw.Row) (*CollateralAllocation, error) {
	date, err := requireString(collateralMetric, -1, doc, "date")
	if err != nil {
		return nil, err
	}
	totalReserve := doc.Float("reserveAssetsInUsd")
	if totalReserve == 0 {
		return nil, &TransformError{Metric: collateralMetric, Row: -1, Field: "reserveAssetsInUsd", Reason: "zero total reserve"}
	}
	totalUSDO := doc.Float("usdoAmount")

	out := &CollateralAllocation{
		Date:                       date,
		TotalUSDOAmount:            totalUSDO,
		TotalReserveUSD:            totalReserve,
		CollateralRatio:            doc.Float("ratio"),
		TotalTBillUSD:              doc.Float("totalTbillAmountInUsd"),
		Allocations:                []AssetAllocation{},
		CirculatingSupplyByNetwork: []CirculatingSupply{},
	}

	totals := make(map[string]float64, len(ReserveAssets))
	for i, c := range chains {
		chain, err := requireString(collateralMetric, i, c, "chainType")
		if err != nil {
			return nil, err
		}

		if usdo := c.Float("usdoAmount"); usdo > 0 {
			if totalUSDO == 0 {
				return nil, &TransformError{Metric: collateralMetric, Row: i, Field: "usdoAmount", Reason: "zero total supply"}
			}
			out.CirculatingSupplyByNetwork = append(out.CirculatingSupplyByNetwork, CirculatingSupply{
				Chain:      chain,
				USDOAmount: usdo,
				Percentage: usdo / totalUSDO * 100,
			})
		}

		for _, a := range ReserveAssets {
			v := c.Float(a.Field)
			totals[a.Name] += v
			if v > DustThreshold {
				out.Allocations = append(out.Allocations, AssetAllocation{
					Chain:      chain,
					Asset:      a.Name,
					USDValue:   v,
					Percentage: v / totalReserve * 100,
				})
			}
		}
	}

	sort.SliceStable(out.Allocations, func(i, j int) bool {
		return out.Allocations[i].USDValue > out.Allocations[j].USDValue
	})
	sort.SliceStable(out.CirculatingSupplyByNetwork, func(i, j int) bool {
		return out.CirculatingSupplyByNetwork[i].USDOAmount > out.CirculatingSupplyByNetwork[j].USDOAmount
	})

	out.SettlementRatios = settlementRatios(totals, totalReserve)
	return out, nil
}

// settlementRatios ranks the asset totals by liquidity tier. BENJI settles
// on T+2. No category currently settles on T+3 alone, so T+3 equals T+2;
// USD held at the custodian is assumed to be reported inside USDC.
func settlementRatios(totals map[string]float64, totalReserve float64) SettlementRatios {
	t1 := totals["TBILL"] + totals["BUIDL"] + totals["VBILL"] + totals["USYC"] + totals["USDC"]
	t2 := t1 + totals["BENJI"]
	t3 := t2
	return SettlementRatios{
		TPlus1: t1 / totalReserve * 100,
		TPlus2: t2 / totalReserve * 100,
		TPlus3: t3 / totalReserve * 100,
	}
}
