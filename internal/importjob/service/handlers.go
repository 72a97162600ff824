package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/wealthdesk/internal/account/domain"
	beneficiarydomain "github.com/smallbiznis/wealthdesk/internal/beneficiary/domain"
	billingdomain "github.com/smallbiznis/wealthdesk/internal/billingperiod/domain"
	"github.com/smallbiznis/wealthdesk/internal/cache"
	clientdomain "github.com/smallbiznis/wealthdesk/internal/client/domain"
	"github.com/smallbiznis/wealthdesk/internal/clock"
	householddomain "github.com/smallbiznis/wealthdesk/internal/household/domain"
	"github.com/smallbiznis/wealthdesk/internal/importjob/domain"
	liabilitydomain "github.com/smallbiznis/wealthdesk/internal/liability/domain"
	"gorm.io/gorm"
)

type handlerDeps struct {
	genID         *snowflake.Node
	clock         clock.Clock
	resolver      cache.ImportResolverCache
	households    householddomain.Repository
	clients       clientdomain.Repository
	accounts      accountdomain.Repository
	liabilities   liabilitydomain.Repository
	beneficiaries beneficiarydomain.Repository
	billing       billingdomain.Repository
}

// NewHandlers builds the per-type row handlers.
func NewHandlers(
	genID *snowflake.Node,
	clk clock.Clock,
	resolver cache.ImportResolverCache,
	households householddomain.Repository,
	clients clientdomain.Repository,
	accounts accountdomain.Repository,
	liabilities liabilitydomain.Repository,
	beneficiaries beneficiarydomain.Repository,
	billing billingdomain.Repository,
) map[domain.ImportType]TypeHandler {
	deps := handlerDeps{
		genID:         genID,
		clock:         clk,
		resolver:      resolver,
		households:    households,
		clients:       clients,
		accounts:      accounts,
		liabilities:   liabilities,
		beneficiaries: beneficiaries,
		billing:       billing,
	}
	handlers := []TypeHandler{
		&contactHandler{deps},
		&accountHandler{deps},
		&liabilityHandler{deps},
		&beneficiaryHandler{deps},
		&billingHandler{deps},
	}
	byType := make(map[domain.ImportType]TypeHandler, len(handlers))
	for _, h := range handlers {
		byType[h.Type()] = h
	}
	return byType
}

// resolveHousehold finds the household by name, creating it when the
// row introduces a new one. Creations are recorded so undo removes them.
func (d handlerDeps) resolveHousehold(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, name string, rec Recorder) (snowflake.ID, error) {
	if id, ok := d.resolver.GetHousehold(orgID, name); ok {
		return id, nil
	}
	existing, err := d.households.WithTx(tx).FindByName(ctx, orgID, name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		d.resolver.SetHousehold(orgID, name, existing.ID)
		return existing.ID, nil
	}

	now := d.clock.Now().UTC()
	h := householddomain.Household{
		ID:        d.genID.Generate(),
		OrgID:     orgID,
		Name:      name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.households.WithTx(tx).Insert(ctx, h); err != nil {
		return 0, err
	}
	if err := rec.Created(householddomain.Household{}.TableName(), h.ID, h); err != nil {
		return 0, err
	}
	return h.ID, nil
}

// resolveClient caches only ids read back from committed rows. A row
// inserted in the current transaction may still roll back, and a cached
// id with no row behind it would orphan every record resolved through
// it until the entry expires.
func (d handlerDeps) resolveClient(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, email string) (snowflake.ID, error) {
	if id, ok := d.resolver.GetClient(orgID, email); ok {
		return id, nil
	}
	existing, err := d.clients.WithTx(tx).FindByEmail(ctx, orgID, email)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, fmt.Errorf("client %q not found", email)
	}
	d.resolver.SetClient(orgID, email, existing.ID)
	return existing.ID, nil
}

func (d handlerDeps) resolveAccount(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, accountNumber string) (snowflake.ID, error) {
	if id, ok := d.resolver.GetAccount(orgID, accountNumber); ok {
		return id, nil
	}
	existing, err := d.accounts.WithTx(tx).FindByNumber(ctx, orgID, accountNumber)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		return 0, fmt.Errorf("account %q not found", accountNumber)
	}
	d.resolver.SetAccount(orgID, accountNumber, existing.ID)
	return existing.ID, nil
}

type contactHandler struct {
	handlerDeps
}

func (h *contactHandler) Type() domain.ImportType { return domain.TypeContact }

func (h *contactHandler) NaturalKey(row map[string]any) (string, error) {
	email := strings.ToLower(stringField(row, "email"))
	if email == "" {
		return "", missingField("email")
	}
	return email, nil
}

func (h *contactHandler) Apply(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, row map[string]any, rec Recorder) (domain.RowOutcome, error) {
	email := strings.ToLower(stringField(row, "email"))
	if email == "" {
		return domain.RowFailed, missingField("email")
	}
	firstName := stringField(row, "first_name")
	lastName := stringField(row, "last_name")
	if firstName == "" || lastName == "" {
		return domain.RowFailed, missingField("first_name/last_name")
	}
	householdName := stringField(row, "household")
	if householdName == "" {
		return domain.RowFailed, missingField("household")
	}

	householdID, err := h.resolveHousehold(ctx, tx, orgID, householdName, rec)
	if err != nil {
		return domain.RowFailed, err
	}

	repo := h.clients.WithTx(tx)
	existing, err := repo.FindByEmail(ctx, orgID, email)
	if err != nil {
		return domain.RowFailed, err
	}

	now := h.clock.Now().UTC()
	if existing != nil {
		before := *existing
		existing.HouseholdID = householdID
		existing.FirstName = firstName
		existing.LastName = lastName
		existing.Phone = stringField(row, "phone")
		existing.Version++
		existing.UpdatedAt = now
		if err := repo.Update(ctx, *existing); err != nil {
			return domain.RowFailed, err
		}
		if err := rec.Updated(clientdomain.Client{}.TableName(), existing.ID, before, *existing); err != nil {
			return domain.RowFailed, err
		}
		return domain.RowUpdated, nil
	}

	c := clientdomain.Client{
		ID:          h.genID.Generate(),
		OrgID:       orgID,
		HouseholdID: householdID,
		FirstName:   firstName,
		LastName:    lastName,
		Email:       email,
		Phone:       stringField(row, "phone"),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Insert(ctx, c); err != nil {
		return domain.RowFailed, err
	}
	if err := rec.Created(clientdomain.Client{}.TableName(), c.ID, c); err != nil {
		return domain.RowFailed, err
	}
	return domain.RowCreated, nil
}

type accountHandler struct {
	handlerDeps
}

func (h *accountHandler) Type() domain.ImportType { return domain.TypeAccount }

func (h *accountHandler) NaturalKey(row map[string]any) (string, error) {
	number := stringField(row, "account_number")
	if number == "" {
		return "", missingField("account_number")
	}
	return number, nil
}

func (h *accountHandler) Apply(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, row map[string]any, rec Recorder) (domain.RowOutcome, error) {
	number := stringField(row, "account_number")
	if number == "" {
		return domain.RowFailed, missingField("account_number")
	}
	clientEmail := strings.ToLower(stringField(row, "client_email"))
	if clientEmail == "" {
		return domain.RowFailed, missingField("client_email")
	}

	clientID, err := h.resolveClient(ctx, tx, orgID, clientEmail)
	if err != nil {
		return domain.RowFailed, err
	}

	balance, _ := floatField(row, "balance")

	repo := h.accounts.WithTx(tx)
	existing, err := repo.FindByNumber(ctx, orgID, number)
	if err != nil {
		return domain.RowFailed, err
	}

	now := h.clock.Now().UTC()
	if existing != nil {
		before := *existing
		existing.ClientID = clientID
		existing.Custodian = stringField(row, "custodian")
		existing.AccountType = stringField(row, "account_type")
		existing.Balance = balance
		existing.Version++
		existing.UpdatedAt = now
		if err := repo.Update(ctx, *existing); err != nil {
			return domain.RowFailed, err
		}
		if err := rec.Updated(accountdomain.Account{}.TableName(), existing.ID, before, *existing); err != nil {
			return domain.RowFailed, err
		}
		return domain.RowUpdated, nil
	}

	a := accountdomain.Account{
		ID:            h.genID.Generate(),
		ClientID:      clientID,
		AccountNumber: number,
		Custodian:     stringField(row, "custodian"),
		AccountType:   stringField(row, "account_type"),
		Balance:       balance,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Insert(ctx, a); err != nil {
		return domain.RowFailed, err
	}
	if err := rec.Created(accountdomain.Account{}.TableName(), a.ID, a); err != nil {
		return domain.RowFailed, err
	}
	return domain.RowCreated, nil
}

type liabilityHandler struct {
	handlerDeps
}

func (h *liabilityHandler) Type() domain.ImportType { return domain.TypeLiability }

func (h *liabilityHandler) NaturalKey(row map[string]any) (string, error) {
	number := stringField(row, "loan_number")
	if number == "" {
		return "", missingField("loan_number")
	}
	return number, nil
}

func (h *liabilityHandler) Apply(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, row map[string]any, rec Recorder) (domain.RowOutcome, error) {
	number := stringField(row, "loan_number")
	if number == "" {
		return domain.RowFailed, missingField("loan_number")
	}
	clientEmail := strings.ToLower(stringField(row, "client_email"))
	if clientEmail == "" {
		return domain.RowFailed, missingField("client_email")
	}

	clientID, err := h.resolveClient(ctx, tx, orgID, clientEmail)
	if err != nil {
		return domain.RowFailed, err
	}

	balance, _ := floatField(row, "balance")

	repo := h.liabilities.WithTx(tx)
	existing, err := repo.FindByLoanNumber(ctx, orgID, number)
	if err != nil {
		return domain.RowFailed, err
	}

	now := h.clock.Now().UTC()
	if existing != nil {
		before := *existing
		existing.ClientID = clientID
		existing.Lender = stringField(row, "lender")
		existing.Balance = balance
		existing.Version++
		existing.UpdatedAt = now
		if err := repo.Update(ctx, *existing); err != nil {
			return domain.RowFailed, err
		}
		if err := rec.Updated(liabilitydomain.Liability{}.TableName(), existing.ID, before, *existing); err != nil {
			return domain.RowFailed, err
		}
		return domain.RowUpdated, nil
	}

	l := liabilitydomain.Liability{
		ID:         h.genID.Generate(),
		ClientID:   clientID,
		LoanNumber: number,
		Lender:     stringField(row, "lender"),
		Balance:    balance,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.Insert(ctx, l); err != nil {
		return domain.RowFailed, err
	}
	if err := rec.Created(liabilitydomain.Liability{}.TableName(), l.ID, l); err != nil {
		return domain.RowFailed, err
	}
	return domain.RowCreated, nil
}

type beneficiaryHandler struct {
	handlerDeps
}

func (h *beneficiaryHandler) Type() domain.ImportType { return domain.TypeBeneficiary }

func (h *beneficiaryHandler) NaturalKey(row map[string]any) (string, error) {
	number := stringField(row, "account_number")
	name := stringField(row, "full_name")
	if number == "" {
		return "", missingField("account_number")
	}
	if name == "" {
		return "", missingField("full_name")
	}
	return number + "|" + strings.ToLower(name), nil
}

func (h *beneficiaryHandler) Apply(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, row map[string]any, rec Recorder) (domain.RowOutcome, error) {
	number := stringField(row, "account_number")
	name := stringField(row, "full_name")
	if number == "" || name == "" {
		return domain.RowFailed, missingField("account_number/full_name")
	}

	accountID, err := h.resolveAccount(ctx, tx, orgID, number)
	if err != nil {
		return domain.RowFailed, err
	}

	allocation, _ := floatField(row, "allocation_pct")

	repo := h.beneficiaries.WithTx(tx)
	existing, err := repo.FindByAccountAndName(ctx, accountID, name)
	if err != nil {
		return domain.RowFailed, err
	}

	now := h.clock.Now().UTC()
	if existing != nil {
		before := *existing
		existing.Relation = stringField(row, "relation")
		existing.AllocationPct = allocation
		existing.Version++
		existing.UpdatedAt = now
		if err := repo.Update(ctx, *existing); err != nil {
			return domain.RowFailed, err
		}
		if err := rec.Updated(beneficiarydomain.Beneficiary{}.TableName(), existing.ID, before, *existing); err != nil {
			return domain.RowFailed, err
		}
		return domain.RowUpdated, nil
	}

	b := beneficiarydomain.Beneficiary{
		ID:            h.genID.Generate(),
		AccountID:     accountID,
		FullName:      name,
		Relation:      stringField(row, "relation"),
		AllocationPct: allocation,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Insert(ctx, b); err != nil {
		return domain.RowFailed, err
	}
	if err := rec.Created(beneficiarydomain.Beneficiary{}.TableName(), b.ID, b); err != nil {
		return domain.RowFailed, err
	}
	return domain.RowCreated, nil
}

type billingHandler struct {
	handlerDeps
}

func (h *billingHandler) Type() domain.ImportType { return domain.TypeBilling }

func (h *billingHandler) NaturalKey(row map[string]any) (string, error) {
	householdName := stringField(row, "household")
	if householdName == "" {
		return "", missingField("household")
	}
	start := stringField(row, "period_start")
	if start == "" {
		return "", missingField("period_start")
	}
	return strings.ToLower(householdName) + "|" + start, nil
}

func (h *billingHandler) Apply(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, row map[string]any, rec Recorder) (domain.RowOutcome, error) {
	householdName := stringField(row, "household")
	if householdName == "" {
		return domain.RowFailed, missingField("household")
	}
	start, ok := dateField(row, "period_start")
	if !ok {
		return domain.RowFailed, missingField("period_start")
	}
	end, ok := dateField(row, "period_end")
	if !ok {
		return domain.RowFailed, missingField("period_end")
	}

	existing, err := h.households.WithTx(tx).FindByName(ctx, orgID, householdName)
	if err != nil {
		return domain.RowFailed, err
	}
	if existing == nil {
		return domain.RowFailed, fmt.Errorf("household %q not found", householdName)
	}

	amount, _ := floatField(row, "amount")
	status := stringField(row, "status")
	if status == "" {
		status = billingdomain.StatusDraft
	}

	repo := h.billing.WithTx(tx)
	current, err := repo.FindByHouseholdAndStart(ctx, existing.ID, start)
	if err != nil {
		return domain.RowFailed, err
	}

	now := h.clock.Now().UTC()
	if current != nil {
		before := *current
		current.PeriodEnd = end
		current.Amount = amount
		current.Status = status
		current.Version++
		current.UpdatedAt = now
		if err := repo.Update(ctx, *current); err != nil {
			return domain.RowFailed, err
		}
		if err := rec.Updated(billingdomain.BillingPeriod{}.TableName(), current.ID, before, *current); err != nil {
			return domain.RowFailed, err
		}
		return domain.RowUpdated, nil
	}

	p := billingdomain.BillingPeriod{
		ID:          h.genID.Generate(),
		HouseholdID: existing.ID,
		PeriodStart: start,
		PeriodEnd:   end,
		Amount:      amount,
		Status:      status,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Insert(ctx, p); err != nil {
		return domain.RowFailed, err
	}
	if err := rec.Created(billingdomain.BillingPeriod{}.TableName(), p.ID, p); err != nil {
		return domain.RowFailed, err
	}
	return domain.RowCreated, nil
}
