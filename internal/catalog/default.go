package catalog

// Document slots referenced by the built-in T1 catalog.
const (
	SlotGovernmentID      = "governmentId"
	SlotPriorAssessment   = "priorNoticeOfAssessment"
	SlotT4Slips           = "t4Slips"
	SlotSelfEmployment    = "selfEmploymentStatements"
	SlotForeignProperty   = "foreignPropertyStatement"
	SlotMedicalReceipts   = "medicalReceipts"
	SlotRRSPReceipts      = "rrspContributionReceipts"
	SlotChildcareReceipts = "childcareReceipts"
	SlotMovingExpenses    = "movingExpenseReceipts"
)

// Default returns the built-in T1 personal return catalog. Panics on an
// invalid definition, which is a programming error caught by tests.
func Default() *Catalog {
	c, err := New(defaultFields(), defaultRules())
	if err != nil {
		panic("invalid built-in catalog: " + err.Error())
	}
	return c
}

func defaultFields() []FieldSpec {
	return []FieldSpec{
		// Step: personal information.
		{Path: "personalInfo.firstName", Kind: KindText, Required: true, Step: "personal", Section: "identity"},
		{Path: "personalInfo.lastName", Kind: KindText, Required: true, Step: "personal", Section: "identity"},
		{Path: "personalInfo.sin", Kind: KindText, Required: true, Format: FormatSIN, Step: "personal", Section: "identity"},
		{Path: "personalInfo.dateOfBirth", Kind: KindDate, Required: true, Step: "personal", Section: "identity"},
		{Path: "personalInfo.maritalStatus", Kind: KindText, Required: true, Step: "personal", Section: "identity"},
		{Path: "contact.phone", Kind: KindText, Required: true, Format: FormatPhone, Step: "personal", Section: "contact"},
		{Path: "contact.email", Kind: KindText, Step: "personal", Section: "contact"},
		{Path: "contact.mailingAddress", Kind: KindText, Required: true, Step: "personal", Section: "contact"},

		// Step: household.
		{Path: "spouse.firstName", Kind: KindText, Required: true, Step: "household",
			RequiredWhen: []Condition{{Path: "personalInfo.maritalStatus", Equals: "married"}}},
		{Path: "spouse.sin", Kind: KindText, Required: true, Format: FormatSIN, Step: "household",
			RequiredWhen: []Condition{{Path: "personalInfo.maritalStatus", Equals: "married"}}},
		{Path: "hasChildren", Kind: KindBool, Step: "household"},
		{Path: "children", Kind: KindArray, Required: true, Step: "household",
			RequiredWhen: []Condition{{Path: "hasChildren"}},
			Elem: []FieldSpec{
				{Path: "firstName", Kind: KindText, Required: true},
				{Path: "sin", Kind: KindText, Format: FormatSIN},
				{Path: "dateOfBirth", Kind: KindDate, Required: true},
			}},

		// Step: income.
		{Path: "income.hasEmploymentIncome", Kind: KindBool, Step: "income"},
		{Path: "income.employerCount", Kind: KindNumeric, NonNegative: true, Step: "income"},
		{Path: "income.hasSelfEmployment", Kind: KindBool, Step: "income"},
		{Path: "income.selfEmploymentRevenue", Kind: KindNumeric, Required: true, NonNegative: true, Step: "income",
			RequiredWhen: []Condition{{Path: "income.hasSelfEmployment"}}},
		{Path: "income.hasForeignIncome", Kind: KindBool, Step: "income"},
		{Path: "hasForeignProperty", Kind: KindBool, Step: "income"},

		// Step: deductions.
		{Path: "deductions.hasRRSPContributions", Kind: KindBool, Step: "deductions"},
		{Path: "deductions.rrspTotal", Kind: KindNumeric, Required: true, NonNegative: true, Step: "deductions",
			RequiredWhen: []Condition{{Path: "deductions.hasRRSPContributions"}}},
		{Path: "deductions.hasMedicalExpenses", Kind: KindBool, Step: "deductions"},
		{Path: "deductions.hasChildcareExpenses", Kind: KindBool, Step: "deductions"},
		{Path: "deductions.movedForWork", Kind: KindBool, Step: "deductions"},
		{Path: "deductions.movingDate", Kind: KindDate, Step: "deductions",
			RequiredWhen: []Condition{{Path: "deductions.movedForWork"}}, Required: true},
	}
}

func defaultRules() []DocumentRule {
	return []DocumentRule{
		// Base set: always required.
		{Slot: SlotGovernmentID, Label: "Government-issued photo ID"},
		{Slot: SlotPriorAssessment, Label: "Prior year notice of assessment"},

		{Slot: SlotT4Slips, Label: "T4 slips from all employers",
			When: []Condition{{Path: "income.hasEmploymentIncome"}}},
		{Slot: SlotSelfEmployment, Label: "Self-employment income and expense statements",
			When: []Condition{{Path: "income.hasSelfEmployment"}}},
		{Slot: SlotForeignProperty, Label: "Foreign property statement (T1135)",
			When: []Condition{{Path: "hasForeignProperty"}}},
		{Slot: SlotMedicalReceipts, Label: "Medical expense receipts",
			When: []Condition{{Path: "deductions.hasMedicalExpenses"}}},
		{Slot: SlotRRSPReceipts, Label: "RRSP contribution receipts",
			When: []Condition{{Path: "deductions.hasRRSPContributions"}}},
		{Slot: SlotChildcareReceipts, Label: "Childcare expense receipts",
			When: []Condition{{Path: "hasChildren"}, {Path: "deductions.hasChildcareExpenses"}}},
		{Slot: SlotMovingExpenses, Label: "Moving expense receipts",
			When: []Condition{{Path: "deductions.movedForWork"}}},
	}
}
