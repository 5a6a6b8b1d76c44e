package models

// ConditionOperator is the comparison applied between an entity field and the
// condition value.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "notEquals"
	OperatorGreaterThan ConditionOperator = "greaterThan"
	OperatorLessThan    ConditionOperator = "lessThan"
	OperatorContains    ConditionOperator = "contains"
)

// ConditionLogic joins a condition with the next condition in the list.
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)

// StepCondition is one field/operator/value rule evaluated against an entity
// snapshot. Logic specifies how the result combines with the next condition
// in the list; when empty, AND is assumed.
type StepCondition struct {
	Field    string            `json:"field"    validate:"required"`
	Operator ConditionOperator `json:"operator" validate:"required,oneof=equals notEquals greaterThan lessThan contains"`
	Value    any               `json:"value"`
	Logic    ConditionLogic    `json:"logic,omitempty" validate:"omitempty,oneof=AND OR"`
}

// EntitySnapshot is the flat field/value map of the business entity under
// approval, supplied by the caller. The engine never fetches entity data
// itself.
type EntitySnapshot map[string]any
