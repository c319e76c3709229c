package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/hrassist/server/internal/agent/model"
)

type EmployeeInput struct {
	EmployeeID string `json:"employee_id,omitempty"`
}

func createGetEmployeeProfileTool(repo model.HRRepository) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetEmployeeProfile,
			Desc: "Get an employee profile: name, job title, department, manager and leave balances. Use the text employee id (e.g. EMP001), not the UUID.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"employee_id": {
					Type: "string",
					Desc: "Employee id (e.g. EMP001). Defaults to the current user.",
				},
			}),
		},
		func(ctx context.Context, in *EmployeeInput) (*model.Employee, error) {
			id, err := employeeOrCaller(ctx, in.EmployeeID)
			if err != nil {
				return nil, err
			}
			return repo.GetEmployee(ctx, id)
		},
	)
}

type TimeOffBalanceOutput struct {
	EmployeeID      string  `json:"employee_id"`
	PTOBalanceDays  float64 `json:"pto_balance_days"`
	SickBalanceDays float64 `json:"sick_balance_days"`
}

func createGetTimeOffBalanceTool(repo model.HRRepository) tool.BaseTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: ToolGetTimeOffBalance,
			Desc: "Get the remaining paid time off and sick leave of an employee, in days.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"employee_id": {
					Type: "string",
					Desc: "Employee id (e.g. EMP001). Defaults to the current user.",
				},
			}),
		},
		func(ctx context.Context, in *EmployeeInput) (*TimeOffBalanceOutput, error) {
			id, err := employeeOrCaller(ctx, in.EmployeeID)
			if err != nil {
				return nil, err
			}
			e, err := repo.GetEmployee(ctx, id)
			if err != nil {
				return nil, err
			}
			return &TimeOffBalanceOutput{
				EmployeeID:      e.EmployeeID,
				PTOBalanceDays:  e.PTOBalanceDays,
				SickBalanceDays: e.SickBalanceDays,
			}, nil
		},
	)
}
