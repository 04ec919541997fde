package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-plt-approvals/internal/repository"
)

func roles(steps []*repository.ApprovalStep) []string {
	out := make([]string, 0, len(steps))
	for _, s := range steps {
		out = append(out, s.ApproverRole)
	}
	return out
}

func TestDeriveApprovalChain(t *testing.T) {
	tests := []struct {
		name         string
		documentType repository.DocumentType
		amount       float64
		want         []string
	}{
		{name: "requisition at threshold falls back", documentType: repository.DocumentRequisition, amount: 1000, want: []string{RoleProcurementManager}},
		{name: "requisition above 1000", documentType: repository.DocumentRequisition, amount: 1001, want: []string{RoleProcurementManager}},
		{name: "requisition at 5000", documentType: repository.DocumentRequisition, amount: 5000, want: []string{RoleProcurementManager}},
		{name: "requisition above 5000", documentType: repository.DocumentRequisition, amount: 5001, want: []string{RoleProcurementManager, RoleFinanceManager}},
		{name: "requisition above 50000", documentType: repository.DocumentRequisition, amount: 50001, want: []string{RoleProcurementManager, RoleFinanceManager, RoleSystemAdministrator}},
		{name: "small requisition", documentType: repository.DocumentRequisition, amount: 10, want: []string{RoleProcurementManager}},
		{name: "invoice at threshold falls back", documentType: repository.DocumentInvoice, amount: 500, want: []string{RoleProcurementManager}},
		{name: "invoice above 500", documentType: repository.DocumentInvoice, amount: 501, want: []string{RoleFinanceManager}},
		{name: "invoice above 25000", documentType: repository.DocumentInvoice, amount: 25001, want: []string{RoleFinanceManager, RoleSystemAdministrator}},
		{name: "purchase order has no rules", documentType: repository.DocumentPurchaseOrder, amount: 999999, want: []string{RoleProcurementManager}},
		{name: "contract has no rules", documentType: repository.DocumentContract, amount: 1e9, want: []string{RoleProcurementManager}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := DeriveApprovalChain(tt.documentType, tt.amount)

			assert.Equal(t, tt.want, roles(steps))
			for i, s := range steps {
				assert.Equal(t, i, s.Order)
				assert.Equal(t, repository.StepPending, s.Status)
			}
		})
	}
}

func TestDeriveChain_CustomRules(t *testing.T) {
	rules := []ChainRule{
		{DocumentType: repository.DocumentContract, Threshold: 0, Role: "Legal"},
	}

	steps := deriveChain(rules, repository.DocumentContract, 1)

	require.Len(t, steps, 1)
	assert.Equal(t, "Legal", steps[0].ApproverRole)
}
