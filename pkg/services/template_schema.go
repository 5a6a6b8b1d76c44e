package services

// templateImportSchema validates uploaded template JSON before it is bound to
// the model types, so malformed documents produce a precise 400 instead of a
// half-populated template.
const templateImportSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "WorkflowTemplateImport",
  "type": "object",
  "required": ["name", "batch_type", "steps"],
  "properties": {
    "name": { "type": "string", "minLength": 3 },
    "description": { "type": "string" },
    "batch_type": {
      "type": "string",
      "enum": ["payroll", "invoice", "timesheet", "expense", "compliance", "purchase-order"]
    },
    "is_active": { "type": "boolean" },
    "steps": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/definitions/step" }
    }
  },
  "definitions": {
    "step": {
      "type": "object",
      "required": ["order", "name", "approver_role"],
      "properties": {
        "order": { "type": "integer", "minimum": 0 },
        "name": { "type": "string", "minLength": 1 },
        "description": { "type": "string" },
        "approver_role": { "type": "string", "minLength": 1 },
        "requires_comments": { "type": "boolean" },
        "can_skip": { "type": "boolean" },
        "skip_conditions": {
          "type": "array",
          "items": { "$ref": "#/definitions/condition" }
        },
        "auto_approval_conditions": {
          "type": "array",
          "items": { "$ref": "#/definitions/condition" }
        },
        "escalation_rules": {
          "type": "array",
          "items": { "$ref": "#/definitions/escalationRule" }
        },
        "is_parallel": { "type": "boolean" },
        "parallel_approval_mode": {
          "type": "string",
          "enum": ["all", "any", "majority"]
        },
        "parallel_approvers": {
          "type": "array",
          "items": { "$ref": "#/definitions/parallelApprover" }
        }
      }
    },
    "condition": {
      "type": "object",
      "required": ["field", "operator"],
      "properties": {
        "field": { "type": "string", "minLength": 1 },
        "operator": {
          "type": "string",
          "enum": ["equals", "notEquals", "greaterThan", "lessThan", "contains"]
        },
        "value": {},
        "logic": { "type": "string", "enum": ["AND", "OR"] }
      }
    },
    "escalationRule": {
      "type": "object",
      "required": ["hours_until_escalation", "escalate_to"],
      "properties": {
        "hours_until_escalation": { "type": "integer", "minimum": 1 },
        "escalate_to": { "type": "string", "minLength": 1 },
        "notify_original_approver": { "type": "boolean" }
      }
    },
    "parallelApprover": {
      "type": "object",
      "required": ["approver_id"],
      "properties": {
        "approver_id": { "type": "string", "minLength": 1 },
        "approver_name": { "type": "string" },
        "approver_role": { "type": "string" },
        "is_required": { "type": "boolean" }
      }
    }
  }
}`
