package sections

import (
	"fmt"

	"kycflow/internal/intake/models"
	id "kycflow/pkg/domain"
)

func text(path, label string) FieldSpec {
	return FieldSpec{Path: models.ParsePath(path), Label: label, Kind: FieldText}
}

func flag(path, label string) FieldSpec {
	return FieldSpec{Path: models.ParsePath(path), Label: label, Kind: FieldFlag}
}

func yesNo(path, label string) FieldSpec {
	return FieldSpec{Path: models.ParsePath(path), Label: label, Kind: FieldTriState}
}

func document(path, label string, required bool) FieldSpec {
	return FieldSpec{Path: models.ParsePath(path), Label: label, Kind: FieldAttachment, Required: required}
}

func documents(path, label string) FieldSpec {
	return FieldSpec{Path: models.ParsePath(path), Label: label, Kind: FieldAttachments}
}

var personalDetails = Section{
	Key:   "personal",
	Label: "Personal Details",
	Fields: []FieldSpec{
		text("first_name", "First name"),
		text("last_name", "Last name"),
		text("date_of_birth", "Date of birth"),
		text("nationality", "Nationality"),
		text("address.street", "Street"),
		text("address.city", "City"),
		text("address.country", "Country"),
	},
}

var identification = Section{
	Key:   "identification",
	Label: "Identification",
	Fields: []FieldSpec{
		text("document_type", "Document type"),
		text("document_number", "Document number"),
		document("id_front", "ID front image", true),
		document("id_back", "ID back image", false),
	},
}

func surrogateSections() []Section {
	return []Section{
		personalDetails,
		{
			Key:   "medical",
			Label: "Medical Information",
			Fields: []FieldSpec{
				text("blood_group", "Blood group"),
				text("height_cm", "Height (cm)"),
				text("weight_kg", "Weight (kg)"),
				yesNo("chronic_conditions", "Any chronic conditions"),
				text("medications", "Current medications"),
			},
		},
		{
			Key:   "pregnancy_history",
			Label: "Pregnancy History",
			Fields: []FieldSpec{
				text("live_births", "Number of live births"),
				yesNo("prior_surrogacy", "Previous surrogacy"),
				yesNo("complications", "Pregnancy complications"),
			},
		},
		{
			Key:   "lifestyle",
			Label: "Lifestyle",
			Fields: []FieldSpec{
				yesNo("smoker", "Smoker"),
				yesNo("alcohol", "Regular alcohol use"),
				text("occupation", "Occupation"),
			},
		},
		{
			Key:   "consent",
			Label: "Legal & Consent",
			Fields: []FieldSpec{
				flag("background_check", "I agree to a background check"),
				flag("medical_records_release", "I authorise release of medical records"),
			},
		},
		identification,
	}
}

func donorSections() []Section {
	return []Section{
		personalDetails,
		{
			Key:   "physical",
			Label: "Physical Attributes",
			Fields: []FieldSpec{
				text("height_cm", "Height (cm)"),
				text("eye_color", "Eye colour"),
				text("hair_color", "Hair colour"),
				text("ethnicity", "Ethnicity"),
			},
		},
		{
			Key:   "medical",
			Label: "Medical Information",
			Fields: []FieldSpec{
				text("blood_group", "Blood group"),
				yesNo("genetic_conditions", "Known genetic conditions"),
				yesNo("prior_donation", "Donated before"),
			},
		},
		{
			Key:   "family_history",
			Label: "Family History",
			Fields: []FieldSpec{
				text("conditions", "Family medical conditions"),
				yesNo("adopted", "Adopted"),
			},
		},
		{
			Key:   "education",
			Label: "Education & Background",
			Fields: []FieldSpec{
				text("highest_level", "Highest education level"),
				text("field_of_study", "Field of study"),
				documents("photos", "Childhood photos"),
			},
		},
		identification,
	}
}

func intendingParentSections() []Section {
	return []Section{
		personalDetails,
		{
			Key:   "partner",
			Label: "Partner Details",
			Fields: []FieldSpec{
				yesNo("has_partner", "Applying with a partner"),
				text("first_name", "Partner first name"),
				text("last_name", "Partner last name"),
			},
		},
		{
			Key:   "family_goals",
			Label: "Family Goals",
			Fields: []FieldSpec{
				text("journey_type", "Surrogacy, donation or both"),
				text("timeline", "Preferred timeline"),
				text("budget", "Budget range"),
			},
		},
		{
			Key:   "preferences",
			Label: "Match Preferences",
			Fields: []FieldSpec{
				text("donor_traits", "Preferred donor traits"),
				yesNo("open_to_contact", "Open to ongoing contact"),
			},
		},
		identification,
	}
}

func agencySections() []Section {
	return []Section{
		{
			Key:   "agency",
			Label: "Agency Details",
			Fields: []FieldSpec{
				text("legal_name", "Legal name"),
				text("trading_name", "Trading name"),
				text("website", "Website"),
				text("address.city", "City"),
				text("address.country", "Country"),
			},
		},
		{
			Key:   "licensing",
			Label: "Licensing",
			Fields: []FieldSpec{
				text("license_number", "License number"),
				text("jurisdiction", "Jurisdiction"),
				document("license_document", "License document", true),
			},
		},
		{
			Key:   "contact",
			Label: "Contact Person",
			Fields: []FieldSpec{
				text("full_name", "Full name"),
				text("email", "Email"),
				text("phone", "Phone"),
			},
		},
		{
			Key:   "services",
			Label: "Services",
			Fields: []FieldSpec{
				flag("surrogacy", "Surrogacy matching"),
				flag("egg_donation", "Egg donation"),
				flag("legal_support", "Legal support"),
				text("countries_served", "Countries served"),
			},
		},
		{
			Key:   "verification",
			Label: "Verification Documents",
			Fields: []FieldSpec{
				document("registration_certificate", "Company registration certificate", true),
				documents("supporting", "Supporting documents"),
			},
		},
	}
}

// ForRole returns the built-in registry for a role.
func ForRole(role id.Role) (*Registry, error) {
	switch role {
	case id.RoleSurrogate:
		return NewRegistry(role, surrogateSections()...)
	case id.RoleDonor:
		return NewRegistry(role, donorSections()...)
	case id.RoleIntendingParent:
		return NewRegistry(role, intendingParentSections()...)
	case id.RoleAgency:
		return NewRegistry(role, agencySections()...)
	}
	return nil, fmt.Errorf("no intake sections for role %q", role)
}
