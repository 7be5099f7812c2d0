/*
presets.go - Pre-built statutory configurations

PURPOSE:
  Ready-to-use configurations for the common statutory schemes. They are
  starting points for a company's catalog and are used by the demo
  scenarios and tests.

AVAILABLE PRESETS:
  StandardProvidentFund:   12% / 12% on a 15,000 wage ceiling
  StandardStateInsurance:  0.75% / 3.25% under a 21,000 gross ceiling
  MaharashtraPT:           Flat slabs 0 / 150 / 200
  MaharashtraLWF:          Half-yearly 25 / 75
  StandardBonus:           8.33% of CTC paid in October
  StandardGratuity:        15/26 of basic per year, 5 year vesting
  StandardLeaveEncashment: Up to 30 days a year

  All presets are created as company defaults.

SEE ALSO:
  - types.go: Config types
  - factory/catalog.go: Document-based configuration
*/
package statutory

import (
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func defaultRecord(id, companyID string, createdAt time.Time) Record {
	return Record{ID: id, CompanyID: companyID, IsDefault: true, CreatedAt: createdAt}
}

// StandardProvidentFund returns PF at 12% each side, capped at 15,000.
func StandardProvidentFund(id, companyID string, createdAt time.Time) ProvidentFund {
	return ProvidentFund{
		Record:           defaultRecord(id, companyID, createdAt),
		EmployeeRate:     dec("12"),
		EmployerRate:     dec("12"),
		EmployeeRestrict: decPtr("15000"),
		EmployerRestrict: decPtr("15000"),
		EDLIRate:         dec("0.5"),
		AdminChargeRate:  dec("0.5"),
	}
}

func StandardStateInsurance(id, companyID string, createdAt time.Time) StateInsurance {
	return StateInsurance{
		Record:             defaultRecord(id, companyID, createdAt),
		EmployeeRate:       dec("0.75"),
		EmployerRate:       dec("3.25"),
		EligibilityCeiling: dec("21000"),
	}
}

// MaharashtraPT uses the slabs (0-15000: 0), (15001-25000: 150), (25001+: 200).
func MaharashtraPT(id, companyID string, createdAt time.Time) ProfessionalTax {
	return ProfessionalTax{
		Record: defaultRecord(id, companyID, createdAt),
		State:  "MH",
		Slabs: []Slab{
			{Lower: dec("0"), Upper: decPtr("15000"), Amount: dec("0")},
			{Lower: dec("15001"), Upper: decPtr("25000"), Amount: dec("150")},
			{Lower: dec("25001"), Amount: dec("200")},
		},
		Cycle: DeductionCycle{Frequency: FrequencyMonthly},
	}
}

func MaharashtraLWF(id, companyID string, createdAt time.Time) LabourWelfareFund {
	return LabourWelfareFund{
		Record:         defaultRecord(id, companyID, createdAt),
		State:          "MH",
		EmployeeAmount: dec("25"),
		EmployerAmount: dec("75"),
		Cycle:          DeductionCycle{Frequency: FrequencyHalfYearly, StartMonth: time.June},
		Active:         true,
	}
}

func StandardBonus(id, companyID string, createdAt time.Time) Bonus {
	return Bonus{
		Record:      defaultRecord(id, companyID, createdAt),
		Percentage:  dec("8.33"),
		PayoutMonth: time.October,
		Basis:       BonusBasisCTC,
	}
}

func StandardGratuity(id, companyID string, createdAt time.Time) Gratuity {
	return Gratuity{
		Record:             defaultRecord(id, companyID, createdAt),
		EligibilityYears:   5,
		PresentDaysPerYear: dec("15"),
		PaymentDaysPerYear: dec("26"),
		MaxAmount:          decPtr("2000000"),
	}
}

func StandardLeaveEncashment(id, companyID string, createdAt time.Time) LeaveEncashment {
	return LeaveEncashment{
		Record:             defaultRecord(id, companyID, createdAt),
		EligibilityYears:   1,
		MaxUnits:           dec("30"),
		Multiplier:         dec("1"),
		WorkingDaysPerYear: dec("365"),
		Frequency:          FrequencyYearly,
	}
}

// StandardCatalog bundles every preset for one company.
func StandardCatalog(companyID string, createdAt time.Time) *Catalog {
	return &Catalog{
		CompanyID:       companyID,
		ProvidentFunds:  []ProvidentFund{StandardProvidentFund("epf-std", companyID, createdAt)},
		StateInsurance:  []StateInsurance{StandardStateInsurance("esic-std", companyID, createdAt)},
		ProfessionalTax: []ProfessionalTax{MaharashtraPT("pt-mh", companyID, createdAt)},
		LabourWelfare:   []LabourWelfareFund{MaharashtraLWF("lwf-mh", companyID, createdAt)},
		Bonuses:         []Bonus{StandardBonus("bonus-std", companyID, createdAt)},
		Gratuities:      []Gratuity{StandardGratuity("gratuity-std", companyID, createdAt)},
		Encashments:     []LeaveEncashment{StandardLeaveEncashment("encash-std", companyID, createdAt)},
	}
}
