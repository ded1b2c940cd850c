package api

const aboutMarkdown = `# **Currency Trends and Exchange Calculator**

### About This Dashboard

This dashboard gives a quick view of exchange rates and their day-over-day variance for a chosen set of currencies. The historical pane lists the selected currencies' rates in a table together with the variance against the previous rate over the chosen period, and a line plot shows the trend. The calculator converts an amount from one currency to another at the latest rate.

**_Exchange rates are updated hourly and historical data covers the past 200 days._**

### Domain of Application

The dashboard is meant for anyone working with currency exchange data: following historical trends for financial analysis or foreign exchange trading, or converting amounts for travel and commerce.

### Usage

- **Historical Data:** pick a base currency, one or more target currencies and a date range. The table and plot show the historical rates of the targets. The "table currency" and "plot currency" selectors narrow either view to some of the chosen targets.

**_Until a table or plot currency is picked, each view shows the first target currency._**

- **Currency Exchange Calculator:** pick the currency to convert from and to, enter the amount and press "Compute". The converted amount is shown in the target currency.

### References
- **Currency Beacon API:** Currency Beacon. (2023). Currency Beacon API. Retrieved from https://currencybeacon.com/
`
