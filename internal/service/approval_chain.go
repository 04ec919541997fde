package service

import "github.com/pesio-ai/be-plt-approvals/internal/repository"

// Approver roles referenced by the routing table.
const (
	RoleProcurementManager  = "Procurement Manager"
	RoleFinanceManager      = "Finance Manager"
	RoleSystemAdministrator = "System Administrator"
)

// defaultSingleStepRole is used when no rule produces a step.
const defaultSingleStepRole = RoleProcurementManager

// ChainRule appends Role to the chain when a document of DocumentType has an
// amount strictly greater than Threshold.
type ChainRule struct {
	DocumentType repository.DocumentType
	Threshold    float64
	Role         string
}

// DefaultChainRules is the procurement routing table. Rules for one document
// type are listed in the order their roles appear in the chain.
var DefaultChainRules = []ChainRule{
	{DocumentType: repository.DocumentRequisition, Threshold: 1000, Role: RoleProcurementManager},
	{DocumentType: repository.DocumentRequisition, Threshold: 5000, Role: RoleFinanceManager},
	{DocumentType: repository.DocumentRequisition, Threshold: 50000, Role: RoleSystemAdministrator},
	{DocumentType: repository.DocumentInvoice, Threshold: 500, Role: RoleFinanceManager},
	{DocumentType: repository.DocumentInvoice, Threshold: 25000, Role: RoleSystemAdministrator},
}

// DeriveApprovalChain returns the step templates required for a document
// using DefaultChainRules.
func DeriveApprovalChain(documentType repository.DocumentType, totalAmount float64) []*repository.ApprovalStep {
	return deriveChain(DefaultChainRules, documentType, totalAmount)
}

// deriveChain evaluates every rule for the document type independently and
// falls back to a single default step when none matched. Templates carry no
// id; ids are assigned when a workflow is created.
func deriveChain(rules []ChainRule, documentType repository.DocumentType, totalAmount float64) []*repository.ApprovalStep {
	var steps []*repository.ApprovalStep
	for _, rule := range rules {
		if rule.DocumentType != documentType || totalAmount <= rule.Threshold {
			continue
		}
		steps = append(steps, &repository.ApprovalStep{
			ApproverRole: rule.Role,
			Status:       repository.StepPending,
			Order:        len(steps),
		})
	}

	if len(steps) == 0 {
		steps = append(steps, &repository.ApprovalStep{
			ApproverRole: defaultSingleStepRole,
			Status:       repository.StepPending,
			Order:        0,
		})
	}
	return steps
}
