package taxonomy

import "bitbucket.org/mmdatafocus/finfacts_backend/models"

// baseMetricDefs is the built-in fallback taxonomy used when no dictionary
// artifact is configured. Production runs load a curated, versioned file; this
// set covers the statement lines the consistency checks depend on plus the
// most common CAS line items.
var baseMetricDefs = []MetricDef{
	// Income statement.
	{MetricCode: "revenue", MetricNameCN: "营业收入", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"营业收入", "主营业务收入", "营业总收入", "revenue"}},
	{MetricCode: "operating_cost", MetricNameCN: "营业成本", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"营业成本", "主营业务成本"}},
	{MetricCode: "selling_expense", MetricNameCN: "销售费用", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"销售费用"}, PatternsExact: []string{"销售费用"}},
	{MetricCode: "admin_expense", MetricNameCN: "管理费用", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"管理费用"}, PatternsExact: []string{"管理费用"}},
	{MetricCode: "rd_expense", MetricNameCN: "研发费用", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"研发费用"}},
	{MetricCode: "finance_expense", MetricNameCN: "财务费用", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"财务费用"}},
	{MetricCode: "taxes_and_surcharges", MetricNameCN: "税金及附加", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"税金及附加"}},
	{MetricCode: "operating_profit", MetricNameCN: "营业利润", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"营业利润"}},
	{MetricCode: "total_profit", MetricNameCN: "利润总额", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"利润总额"}},
	{MetricCode: "income_tax", MetricNameCN: "所得税费用", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"所得税费用", "所得税"}},
	{MetricCode: "net_profit", MetricNameCN: "净利润", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"净利润", "净收益"}},
	{MetricCode: "net_profit_parent", MetricNameCN: "归属于母公司股东的净利润", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"归属于母公司股东的净利润", "归母净利润", "归属于母公司所有者的净利润"}},
	{MetricCode: "eps_basic", MetricNameCN: "基本每股收益", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureRatio,
		Patterns: []string{"基本每股收益"}},
	{MetricCode: "eps_diluted", MetricNameCN: "稀释每股收益", StatementType: models.StatementTypeIncome, ValueNature: models.ValueNatureRatio,
		Patterns: []string{"稀释每股收益"}},

	// Balance sheet.
	{MetricCode: "cash_and_cash_equivalents", MetricNameCN: "货币资金", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"货币资金", "现金及现金等价物"}},
	{MetricCode: "notes_receivable", MetricNameCN: "应收票据", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"应收票据"}},
	{MetricCode: "accounts_receivable", MetricNameCN: "应收账款", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"应收账款"}},
	{MetricCode: "prepayments", MetricNameCN: "预付款项", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"预付款项"}},
	{MetricCode: "other_receivables", MetricNameCN: "其他应收款", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"其他应收款"}},
	{MetricCode: "inventory", MetricNameCN: "存货", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		PatternsExact: []string{"存货"}},
	{MetricCode: "current_assets_total", MetricNameCN: "流动资产合计", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"流动资产合计"}},
	{MetricCode: "long_term_investments", MetricNameCN: "长期股权投资", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"长期股权投资", "长期投资"}},
	{MetricCode: "fixed_assets", MetricNameCN: "固定资产", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"固定资产"}},
	{MetricCode: "construction_in_progress", MetricNameCN: "在建工程", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"在建工程"}},
	{MetricCode: "intangible_assets", MetricNameCN: "无形资产", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"无形资产"}},
	{MetricCode: "goodwill", MetricNameCN: "商誉", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		PatternsExact: []string{"商誉"}},
	{MetricCode: "noncurrent_assets_total", MetricNameCN: "非流动资产合计", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"非流动资产合计"}},
	{MetricCode: "total_assets", MetricNameCN: "资产总计", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"资产总计", "资产总额", "total assets"}},
	{MetricCode: "short_term_borrowings", MetricNameCN: "短期借款", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"短期借款"}},
	{MetricCode: "notes_payable", MetricNameCN: "应付票据", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"应付票据"}},
	{MetricCode: "accounts_payable", MetricNameCN: "应付账款", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"应付账款"}},
	{MetricCode: "contract_liabilities", MetricNameCN: "合同负债", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"合同负债", "预收款项"}},
	{MetricCode: "payroll_payable", MetricNameCN: "应付职工薪酬", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"应付职工薪酬"}},
	{MetricCode: "taxes_payable", MetricNameCN: "应交税费", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"应交税费"}},
	{MetricCode: "other_payables", MetricNameCN: "其他应付款", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"其他应付款"}},
	{MetricCode: "long_term_borrowings", MetricNameCN: "长期借款", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"长期借款"}},
	{MetricCode: "total_liabilities", MetricNameCN: "负债合计", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"负债合计", "负债总计"}},
	{MetricCode: "paid_in_capital", MetricNameCN: "实收资本", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"实收资本"}, PatternsExact: []string{"股本"}},
	{MetricCode: "capital_reserve", MetricNameCN: "资本公积", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"资本公积"}},
	{MetricCode: "retained_earnings", MetricNameCN: "未分配利润", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"未分配利润"}},
	{MetricCode: "total_equity_parent", MetricNameCN: "归属于母公司股东权益合计", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"归属于母公司股东权益合计", "归属于母公司所有者权益合计"}},
	{MetricCode: "total_equity", MetricNameCN: "所有者权益合计", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"所有者权益合计", "股东权益合计", "权益合计"}},
	{MetricCode: "total_liabilities_equity", MetricNameCN: "负债和所有者权益总计", StatementType: models.StatementTypeBalance, ValueNature: models.ValueNatureStock,
		Patterns: []string{"负债和所有者权益总计", "负债和股东权益总计"}},

	// Cash-flow statement.
	{MetricCode: "net_cash_flow_operating", MetricNameCN: "经营活动产生的现金流量净额", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"经营活动产生的现金流量净额", "经营活动现金流量净额"}},
	{MetricCode: "operating_cash_inflows_subtotal", MetricNameCN: "经营活动现金流入小计", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"经营活动现金流入小计"}},
	{MetricCode: "operating_cash_outflows_subtotal", MetricNameCN: "经营活动现金流出小计", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"经营活动现金流出小计"}},
	{MetricCode: "cash_received_from_sales", MetricNameCN: "销售商品、提供劳务收到的现金", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"销售商品、提供劳务收到的现金"}},
	{MetricCode: "cash_paid_for_goods", MetricNameCN: "购买商品、接受劳务支付的现金", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"购买商品、接受劳务支付的现金"}},
	{MetricCode: "cash_paid_to_employees", MetricNameCN: "支付给职工以及为职工支付的现金", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"支付给职工以及为职工支付的现金"}},
	{MetricCode: "taxes_paid", MetricNameCN: "支付的各项税费", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"支付的各项税费"}},
	{MetricCode: "net_cash_flow_investing", MetricNameCN: "投资活动产生的现金流量净额", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"投资活动产生的现金流量净额"}},
	{MetricCode: "cash_paid_for_long_term_assets", MetricNameCN: "购建长期资产支付的现金", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"购建固定资产、无形资产和其他长期资产支付的现金"}},
	{MetricCode: "net_cash_flow_financing", MetricNameCN: "筹资活动产生的现金流量净额", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"筹资活动产生的现金流量净额"}},
	{MetricCode: "cash_received_from_borrowings", MetricNameCN: "取得借款收到的现金", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"取得借款收到的现金"}},
	{MetricCode: "cash_paid_for_debt", MetricNameCN: "偿还债务支付的现金", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"偿还债务支付的现金"}},
	{MetricCode: "fx_effect_on_cash", MetricNameCN: "汇率变动对现金及现金等价物的影响", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"汇率变动对现金及现金等价物的影响", "汇率变动对现金的影响"}},
	{MetricCode: "net_increase_cash", MetricNameCN: "现金及现金等价物净增加额", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureFlow,
		Patterns: []string{"现金及现金等价物净增加额", "net increase in cash"}},
	{MetricCode: "cash_begin", MetricNameCN: "期初现金及现金等价物余额", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureStock,
		Patterns: []string{"期初现金及现金等价物余额"}},
	{MetricCode: "cash_end", MetricNameCN: "期末现金及现金等价物余额", StatementType: models.StatementTypeCashflow, ValueNature: models.ValueNatureStock,
		Patterns: []string{"期末现金及现金等价物余额"}},
}
